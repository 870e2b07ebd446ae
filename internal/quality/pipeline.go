package quality

import (
	"context"
	"fmt"
	"sort"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
)

// Result is the pipeline's output. Suggestions is never empty and never
// exceeds the configured maximum.
type Result struct {
	Suggestions  []models.Suggestion
	FallbackUsed bool
	AvgScore     float64
	Rejected     int
}

// Pipeline validates generated candidates in fixed stages: duplicate
// rejection, content scoring with structural-violation penalties, threshold
// filtering, ranking, and fallback padding. It never returns an error; any
// internal failure degrades to the emergency set.
type Pipeline struct {
	cfg       config.QualityConfig
	log       logger.Logger
	validator *StructuralValidator
	dedupe    *Deduplicator
	scorer    Scorer
	synth     *Synthesizer
}

func NewPipeline(cfg config.QualityConfig, scorer Scorer, log logger.Logger) (*Pipeline, error) {
	validator, err := NewStructuralValidator(cfg)
	if err != nil {
		return nil, err
	}
	if scorer == nil {
		scorer = NewHeuristicScorer()
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log.WithFields(map[string]interface{}{"component": "quality"}),
		validator: validator,
		dedupe:    NewDeduplicator(cfg.DuplicateThreshold, cfg.RecentWindowSize),
		scorer:    scorer,
		synth:     NewSynthesizer(),
	}, nil
}

// Process runs the full validation pipeline. qualityThreshold is the serving
// tier's minimum acceptable score.
func (p *Pipeline) Process(ctx context.Context, req *models.Request, candidates []models.Suggestion, qualityThreshold float64) (result Result) {
	tone := ""
	if req != nil {
		tone = req.Tone
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("quality pipeline panicked, serving emergency fallback", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
			metrics.FallbacksServed.WithLabelValues("pipeline_panic").Inc()
			result = Result{
				Suggestions:  p.synth.Emergency(tone),
				FallbackUsed: true,
			}
		}
	}()

	kept := make([]models.Suggestion, 0, len(candidates))
	keptTexts := make([]string, 0, len(candidates))
	rejected := 0

	for _, candidate := range candidates {
		if p.dedupe.IsDuplicate(candidate.Text, keptTexts) {
			rejected++
			continue
		}

		score := p.scorer.Score(ctx, req, candidate)

		// Structural violations penalize rather than abort; the tier
		// threshold below decides whether the candidate still serves.
		if violations := p.validator.Violations(candidate); len(violations) > 0 {
			for range violations {
				score *= 0.5
			}
			p.log.Debug("candidate has structural violations", map[string]interface{}{
				"violations": violations,
			})
		}

		if candidate.Confidence < p.cfg.MinConfidence || score < qualityThreshold {
			rejected++
			continue
		}

		candidate.QualityScore = score
		kept = append(kept, candidate)
		keptTexts = append(keptTexts, candidate.Text)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].QualityScore > kept[j].QualityScore
	})

	if len(kept) > p.cfg.MaxSuggestions {
		rejected += len(kept) - p.cfg.MaxSuggestions
		kept = kept[:p.cfg.MaxSuggestions]
		keptTexts = keptTexts[:0]
		for _, s := range kept {
			keptTexts = append(keptTexts, s.Text)
		}
	}

	fallbackUsed := false
	if missing := p.cfg.MinSuggestions - len(kept); missing > 0 {
		padding := p.synth.Synthesize(tone, missing, keptTexts)
		kept = append(kept, padding...)
		fallbackUsed = len(padding) > 0
		metrics.FallbacksServed.WithLabelValues("insufficient_candidates").Add(float64(len(padding)))
	}

	for _, s := range kept {
		if !s.Fallback {
			p.dedupe.Observe(s.Text)
		}
	}

	var sum float64
	for _, s := range kept {
		sum += s.QualityScore
	}
	avg := 0.0
	if len(kept) > 0 {
		avg = sum / float64(len(kept))
	}

	return Result{
		Suggestions:  kept,
		FallbackUsed: fallbackUsed,
		AvgScore:     avg,
		Rejected:     rejected,
	}
}
