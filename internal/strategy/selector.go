package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/monitor"
)

// tierOrder ranks tiers from cheapest to most thorough.
var tierOrder = []string{
	config.TierKeyboard,
	config.TierFast,
	config.TierStandard,
	config.TierComprehensive,
}

// Decision is the selector's output: the tier to run plus the scaled timeout
// budgets for this request.
type Decision struct {
	Tier              string
	TierConfig        config.TierConfig
	Complexity        float64
	Load              float64
	VisionTimeout     time.Duration
	GenerationTimeout time.Duration
	TotalTimeout      time.Duration
}

// Selector maps request complexity and system load onto a processing tier.
// Selection never fails: any internal defect falls back to the standard tier
// with its unscaled budgets.
type Selector struct {
	cfg   config.StrategyConfig
	tiers map[string]config.TierConfig
	log   logger.Logger
	now   func() time.Time

	mu             sync.Mutex
	history        map[string]*monitor.RingBuffer // tier -> recent total latencies (ms)
	downgradeUntil time.Time
}

func NewSelector(cfg config.StrategyConfig, tiers map[string]config.TierConfig, log logger.Logger) *Selector {
	return &Selector{
		cfg:     cfg,
		tiers:   tiers,
		log:     log.WithFields(map[string]interface{}{"component": "strategy"}),
		now:     time.Now,
		history: make(map[string]*monitor.RingBuffer),
	}
}

// Select picks the tier for a request given the current load snapshot.
func (s *Selector) Select(req *models.Request, load monitor.LoadSnapshot) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("strategy selection panicked, falling back to standard tier", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
			tierCfg := s.tiers[config.TierStandard]
			decision = Decision{
				Tier:              config.TierStandard,
				TierConfig:        tierCfg,
				VisionTimeout:     config.GetDuration(tierCfg.VisionTimeout),
				GenerationTimeout: config.GetDuration(tierCfg.GenerationTimeout),
				TotalTimeout:      config.GetDuration(tierCfg.TotalTimeout),
			}
		}
	}()

	complexity := Complexity(req)
	loadScore := s.loadScore(load)

	budgetTier, execTier := s.pickTiers(req, complexity, loadScore)
	budgetCfg := s.tiers[budgetTier]

	// Budgets key off the load-free tier, so rising load can only stretch
	// them. Load sheds the execution tier instead of shrinking the clock.
	scale := (1 + 0.5*loadScore) * s.historyMultiplier(budgetTier)

	return Decision{
		Tier:              execTier,
		TierConfig:        s.tiers[execTier],
		Complexity:        complexity,
		Load:              loadScore,
		VisionTimeout:     scaleTimeout(budgetCfg.VisionTimeout, scale),
		GenerationTimeout: scaleTimeout(budgetCfg.GenerationTimeout, scale),
		TotalTimeout:      scaleTimeout(budgetCfg.TotalTimeout, scale),
	}
}

// pickTiers resolves the budget tier (complexity only) and the execution tier
// (budget tier shed under load). The keyboard tier is reserved for an explicit
// StrategyOverride; complexity alone never selects it.
func (s *Selector) pickTiers(req *models.Request, complexity, loadScore float64) (string, string) {
	budget := ""
	if req.StrategyOverride != "" {
		if _, ok := s.tiers[req.StrategyOverride]; ok {
			budget = req.StrategyOverride
		} else {
			s.log.Warn("unknown strategy override ignored", map[string]interface{}{
				"override": req.StrategyOverride,
			})
		}
	}

	exec := budget
	if budget == "" {
		budget = tierForComplexity(complexity)
		exec = tierForComplexity(complexity * (1 - 0.5*loadScore))

		// Load caps bound the ceiling regardless of complexity.
		if loadScore >= 0.8 {
			exec = minTier(exec, config.TierFast)
		} else if loadScore >= 0.6 {
			exec = minTier(exec, config.TierStandard)
		}
		exec = minTier(exec, budget)
	}

	s.mu.Lock()
	downgrading := s.now().Before(s.downgradeUntil)
	s.mu.Unlock()
	if downgrading {
		budget = lowerTier(budget)
		exec = lowerTier(exec)
	}

	return budget, exec
}

func tierForComplexity(c float64) string {
	switch {
	case c < 0.45:
		return config.TierFast
	case c < 0.7:
		return config.TierStandard
	default:
		return config.TierComprehensive
	}
}

// RecordOutcome feeds a finished request's total latency back into the
// per-tier budget history used for timeout scaling.
func (s *Selector) RecordOutcome(tier string, totalLatency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.history[tier]
	if !ok {
		rb = monitor.NewRingBuffer(20)
		s.history[tier] = rb
	}
	rb.Add(float64(totalLatency.Milliseconds()))
}

// ApplyDowngrade forces one-tier-lower selection for the given duration.
// Wired to the monitor's tier-downgrade remediation signal.
func (s *Selector) ApplyDowngrade(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(d)
	if until.After(s.downgradeUntil) {
		s.downgradeUntil = until
	}
	s.log.Info("tier downgrade window applied", map[string]interface{}{
		"durationMs": d.Milliseconds(),
	})
}

// historyMultiplier widens budgets for tiers that have been running over, and
// tightens them when there is clear headroom.
func (s *Selector) historyMultiplier(tier string) float64 {
	tierCfg, ok := s.tiers[tier]
	if !ok || tierCfg.TotalTimeout == 0 {
		return 1
	}

	s.mu.Lock()
	rb, ok := s.history[tier]
	var mean float64
	var n int
	if ok {
		mean = rb.Mean()
		n = rb.Len()
	}
	s.mu.Unlock()

	if n < 5 {
		return 1
	}
	budget := float64(tierCfg.TotalTimeout)
	switch {
	case mean > budget:
		return 1.2
	case mean < budget*0.5:
		return 0.9
	default:
		return 1
	}
}

// loadScore collapses the snapshot into a single [0,1] pressure scalar.
func (s *Selector) loadScore(snap monitor.LoadSnapshot) float64 {
	active := clamp01(float64(snap.ActiveRequests) / float64(s.cfg.MaxActiveRequests))
	latency := clamp01(snap.AvgLatencyMs / s.cfg.LatencyThresholdMs)
	errRate := clamp01(snap.ErrorRate / s.cfg.ErrorRateThreshold)
	return clamp01(0.4*active + 0.3*latency + 0.3*errRate)
}

// Complexity estimates how much work a request needs, in [0,1]. Image
// payloads dominate; long context and rich preferences add smaller bumps.
func Complexity(req *models.Request) float64 {
	c := 0.0
	if len(req.ImageData) > 0 {
		c += 0.35
		kb := float64(len(req.ImageData)) / 1024
		c += math.Min(0.15, kb/1024*0.15)
	}
	c += math.Min(0.3, float64(len([]rune(req.Context)))/800*0.3)
	c += math.Min(0.1, float64(len(req.Preferences))*0.025)
	if req.Tone != "" {
		c += 0.05
	}
	return clamp01(c)
}

func scaleTimeout(ms int, scale float64) time.Duration {
	return time.Duration(float64(ms)*scale) * time.Millisecond
}

// TierRank returns the tier's position in the cheap-to-thorough order, -1 for
// unknown names.
func TierRank(tier string) int {
	for i, name := range tierOrder {
		if name == tier {
			return i
		}
	}
	return -1
}

func minTier(a, b string) string {
	if TierRank(a) <= TierRank(b) {
		return a
	}
	return b
}

func lowerTier(tier string) string {
	rank := TierRank(tier)
	if rank <= 0 {
		return tierOrder[0]
	}
	return tierOrder[rank-1]
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
