package quality

import (
	"context"
	"strings"

	"ai-orchestrator/internal/models"
)

// Scorer assigns a content quality score in [0,1] to a candidate suggestion.
// Implementations must be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, req *models.Request, s models.Suggestion) float64
}

// degradedPhrases are markers of refused, truncated, or filler output. Any
// occurrence carries a severity penalty.
var degradedPhrases = map[string]float64{
	"as an ai":               0.4,
	"i cannot":               0.3,
	"i'm sorry, but":         0.3,
	"i am unable":            0.3,
	"lorem ipsum":            0.5,
	"[insert":                0.5,
	"your response here":     0.5,
	"something went wrong":   0.3,
	"...":                    0.1,
	"error":                  0.2,
}

// HeuristicScorer is the default content scorer. It combines the generator's
// own confidence with length, tone alignment, and degraded-output markers.
type HeuristicScorer struct{}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

func (h *HeuristicScorer) Score(_ context.Context, req *models.Request, s models.Suggestion) float64 {
	score := 0.5 + 0.4*clamp01(s.Confidence)

	score += lengthBonus(s.Text)

	if req != nil && req.Tone != "" && s.Tone != "" {
		if strings.EqualFold(req.Tone, s.Tone) {
			score += 0.05
		} else {
			score -= 0.1
		}
	}

	lower := strings.ToLower(s.Text)
	for phrase, penalty := range degradedPhrases {
		if strings.Contains(lower, phrase) {
			score -= penalty
		}
	}

	if repeatedWordRatio(lower) > 0.5 {
		score -= 0.2
	}

	return clamp01(score)
}

// lengthBonus favors the conversational sweet spot. Very short texts carry
// little signal; very long ones read like dumps.
func lengthBonus(text string) float64 {
	n := len([]rune(text))
	switch {
	case n >= 30 && n <= 160:
		return 0.1
	case n < 20:
		return -0.15
	case n > 240:
		return -0.1
	default:
		return 0
	}
}

// repeatedWordRatio returns the fraction of words that are repeats.
func repeatedWordRatio(lower string) float64 {
	words := strings.Fields(lower)
	if len(words) < 4 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return 1 - float64(len(seen))/float64(len(words))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
