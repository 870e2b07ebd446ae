package quality

import (
	"context"
	"fmt"
	"testing"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		MinSuggestions:     3,
		MaxSuggestions:     5,
		MinTextLength:      10,
		MaxTextLength:      280,
		DuplicateThreshold: 0.8,
		RecentWindowSize:   50,
		MinConfidence:      0.4,
	}
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testQualityConfig(), nil, logger.NewNoOpLogger())
	require.NoError(t, err)
	return p
}

func mkSuggestion(text string, confidence float64) models.Suggestion {
	return models.Suggestion{Text: text, Confidence: confidence}
}

func testRequest() *models.Request {
	return &models.Request{Context: "lunch plans", Tone: "friendly", UserID: "u1"}
}

func TestProcessEmptyInputServesExactlyMinFallbacks(t *testing.T) {
	p := newTestPipeline(t)

	result := p.Process(context.Background(), testRequest(), nil, 0.6)

	require.Len(t, result.Suggestions, 3)
	assert.True(t, result.FallbackUsed)
	for _, s := range result.Suggestions {
		assert.True(t, s.Fallback)
		assert.NotEmpty(t, s.Text)
	}
}

func TestProcessKeepsGoodCandidates(t *testing.T) {
	p := newTestPipeline(t)

	candidates := []models.Suggestion{
		mkSuggestion("Want to grab lunch at the new ramen place around noon?", 0.9),
		mkSuggestion("I found a great sandwich spot we should try together soon.", 0.85),
		mkSuggestion("How about a quick picnic in the park if weather holds?", 0.8),
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.5)

	require.Len(t, result.Suggestions, 3)
	assert.False(t, result.FallbackUsed)
	for _, s := range result.Suggestions {
		assert.False(t, s.Fallback)
		assert.GreaterOrEqual(t, s.QualityScore, 0.5)
	}
}

func TestProcessSortsByQualityScore(t *testing.T) {
	p := newTestPipeline(t)

	candidates := []models.Suggestion{
		mkSuggestion("Maybe we could possibly consider eating somewhere at some point.", 0.5),
		mkSuggestion("Want to grab lunch at the new ramen place around noon?", 0.95),
		mkSuggestion("I found a great sandwich spot we should try together soon.", 0.75),
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.3)

	require.GreaterOrEqual(t, len(result.Suggestions), 3)
	for i := 1; i < len(result.Suggestions); i++ {
		if result.Suggestions[i].Fallback {
			break
		}
		assert.GreaterOrEqual(t, result.Suggestions[i-1].QualityScore, result.Suggestions[i].QualityScore)
	}
}

func TestStructuralViolationsPenalizedBelowThreshold(t *testing.T) {
	p := newTestPipeline(t)

	candidates := []models.Suggestion{
		mkSuggestion("too short", 0.9),           // under min length
		mkSuggestion("valid length text here ok", 1.5), // confidence out of range
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.5)

	assert.Equal(t, 2, result.Rejected)
	assert.True(t, result.FallbackUsed)
	for _, s := range result.Suggestions {
		assert.True(t, s.Fallback)
	}
}

func TestStructuralViolationsArePenaltiesNotDrops(t *testing.T) {
	p := newTestPipeline(t)

	clean := mkSuggestion("Want to grab lunch at the new ramen place around noon?", 0.9)
	flawed := mkSuggestion("I found a great sandwich spot we should try together soon.", 1.5)

	result := p.Process(context.Background(), testRequest(), []models.Suggestion{clean, flawed}, 0.2)

	generated := make(map[string]float64)
	for _, s := range result.Suggestions {
		if !s.Fallback {
			generated[s.Text] = s.QualityScore
		}
	}
	require.Contains(t, generated, flawed.Text, "a lenient threshold keeps penalized candidates")
	assert.Less(t, generated[flawed.Text], generated[clean.Text])
}

func TestProcessRejectsLowConfidence(t *testing.T) {
	p := newTestPipeline(t)

	candidates := []models.Suggestion{
		mkSuggestion("Want to grab lunch at the new ramen place around noon?", 0.2),
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.1)

	assert.Equal(t, 1, result.Rejected)
	assert.True(t, result.FallbackUsed)
}

func TestProcessDropsExactDuplicateWithinBatch(t *testing.T) {
	p := newTestPipeline(t)

	text := "Want to grab lunch at the new ramen place around noon?"
	candidates := []models.Suggestion{
		mkSuggestion(text, 0.9),
		mkSuggestion(text, 0.9),
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.3)

	generated := 0
	for _, s := range result.Suggestions {
		if !s.Fallback {
			generated++
		}
	}
	assert.Equal(t, 1, generated)
}

func TestProcessDropsNearDuplicate(t *testing.T) {
	p := newTestPipeline(t)

	candidates := []models.Suggestion{
		mkSuggestion("the quick brown fox jumps over the lazy dog today", 0.9),
		mkSuggestion("the quick brown fox jumps over the lazy dog tonight", 0.9),
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.1)

	generated := 0
	for _, s := range result.Suggestions {
		if !s.Fallback {
			generated++
		}
	}
	assert.Equal(t, 1, generated)
}

func TestProcessRejectsRecentlyServedText(t *testing.T) {
	p := newTestPipeline(t)
	text := "Want to grab lunch at the new ramen place around noon?"

	first := p.Process(context.Background(), testRequest(), []models.Suggestion{mkSuggestion(text, 0.9)}, 0.3)
	require.False(t, first.Suggestions[0].Fallback)

	second := p.Process(context.Background(), testRequest(), []models.Suggestion{mkSuggestion(text, 0.9)}, 0.3)
	for _, s := range second.Suggestions {
		assert.True(t, s.Fallback, "previously served text must not be served again")
	}
}

func TestProcessCapsAtMaxSuggestions(t *testing.T) {
	p := newTestPipeline(t)

	var candidates []models.Suggestion
	for i := 0; i < 8; i++ {
		candidates = append(candidates, mkSuggestion(
			fmt.Sprintf("Unique idea number %d with plenty of distinct wording variant %d here", i, i*7),
			0.9,
		))
	}

	result := p.Process(context.Background(), testRequest(), candidates, 0.3)

	assert.Len(t, result.Suggestions, 5)
	assert.False(t, result.FallbackUsed)
}

func TestProcessPanicServesEmergencyFallback(t *testing.T) {
	p := newTestPipeline(t)
	p.scorer = panicScorer{}

	result := p.Process(context.Background(), testRequest(), []models.Suggestion{
		mkSuggestion("Want to grab lunch at the new ramen place around noon?", 0.9),
	}, 0.3)

	require.Len(t, result.Suggestions, 3)
	assert.True(t, result.FallbackUsed)
	for _, s := range result.Suggestions {
		assert.True(t, s.Fallback)
	}
}

type panicScorer struct{}

func (panicScorer) Score(context.Context, *models.Request, models.Suggestion) float64 {
	panic("scorer blew up")
}

func TestProcessOutputBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("output size always within configured bounds", prop.ForAll(
		func(words []string, confidence float64) bool {
			p, err := NewPipeline(testQualityConfig(), nil, logger.NewNoOpLogger())
			if err != nil {
				return false
			}

			candidates := make([]models.Suggestion, 0, len(words))
			for i, w := range words {
				candidates = append(candidates, mkSuggestion(
					fmt.Sprintf("generated reply %d about %s with some context", i, w),
					confidence,
				))
			}

			result := p.Process(context.Background(), testRequest(), candidates, 0.6)
			return len(result.Suggestions) >= 3 && len(result.Suggestions) <= 5
		},
		gen.SliceOf(gen.Identifier()),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "hey!!! what's up?", "hey whats up"},
		{"collapses whitespace", "a   b\t\nc", "a b c"},
		{"trims", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("the quick brown fox")
	b := wordSet("the quick brown dog")
	assert.InDelta(t, 0.6, jaccard(a, b), 0.001)

	assert.Equal(t, 1.0, jaccard(wordSet(""), wordSet("")))
	assert.Equal(t, 0.0, jaccard(wordSet("alpha"), wordSet("beta")))
}

func TestSynthesizerDecayingConfidence(t *testing.T) {
	s := NewSynthesizer()

	out := s.Synthesize("friendly", 3, nil)
	require.Len(t, out, 3)
	assert.Equal(t, 0.5, out[0].Confidence)
	assert.Greater(t, out[0].Confidence, out[1].Confidence)
	assert.Greater(t, out[1].Confidence, out[2].Confidence)
}

func TestSynthesizerSkipsExistingTexts(t *testing.T) {
	s := NewSynthesizer()

	bank := fallbackBank["friendly"]
	out := s.Synthesize("friendly", 2, []string{bank[0]})

	require.Len(t, out, 2)
	for _, sg := range out {
		assert.NotEqual(t, NormalizeText(bank[0]), NormalizeText(sg.Text))
	}
}

func TestSynthesizerUnknownToneUsesDefaultBank(t *testing.T) {
	s := NewSynthesizer()

	out := s.Synthesize("sarcastic-pirate", 3, nil)
	require.Len(t, out, 3)
}

func TestHeuristicScorerPenalizesDegradedOutput(t *testing.T) {
	scorer := NewHeuristicScorer()
	req := testRequest()

	good := scorer.Score(context.Background(), req, models.Suggestion{
		Text:       "Want to grab lunch at the new ramen place around noon?",
		Confidence: 0.9,
	})
	degraded := scorer.Score(context.Background(), req, models.Suggestion{
		Text:       "As an AI I cannot really suggest a lunch plan for you here.",
		Confidence: 0.9,
	})

	assert.Greater(t, good, degraded)
}

func TestHeuristicScorerToneMismatch(t *testing.T) {
	scorer := NewHeuristicScorer()
	req := testRequest()

	matched := scorer.Score(context.Background(), req, models.Suggestion{
		Text: "Want to grab lunch at the new ramen place around noon?", Confidence: 0.8, Tone: "friendly",
	})
	mismatched := scorer.Score(context.Background(), req, models.Suggestion{
		Text: "Want to grab lunch at the new ramen place around noon?", Confidence: 0.8, Tone: "professional",
	})

	assert.Greater(t, matched, mismatched)
}
