package orchestrator

import (
	"context"
	"sync"
	"time"

	"ai-orchestrator/internal/breaker"
	"ai-orchestrator/internal/cache"
	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/monitor"
	"ai-orchestrator/internal/notification"
	"ai-orchestrator/internal/providers"
	"ai-orchestrator/internal/quality"
	"ai-orchestrator/internal/strategy"
	"ai-orchestrator/internal/telemetry"

	"github.com/google/uuid"
)

// Deps carries everything the service needs. Notifier, Moderation, and
// Telemetry may be nil; the corresponding behavior is skipped.
type Deps struct {
	Config     *config.Config
	Logger     logger.Logger
	Selector   *strategy.Selector
	Breakers   *breaker.Manager
	Cache      *cache.Cache
	Pipeline   *quality.Pipeline
	Monitor    *monitor.Monitor
	Providers  map[string]providers.Provider
	Prompts    PromptBuilder
	Moderation ModerationFilter
	Notifier   *notification.Notifier
	Telemetry  *telemetry.Sink
}

// Service is the request orchestration core: it selects a tier, probes the
// cache, runs the upstream pipeline behind circuit breakers, validates the
// output, and always returns a well-formed response.
type Service struct {
	deps Deps
	log  logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	notified map[string]struct{}
}

func NewService(deps Deps) *Service {
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBuilder()
	}
	s := &Service{
		deps:     deps,
		log:      deps.Logger.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:      time.Now,
		notified: make(map[string]struct{}),
	}

	deps.Monitor.OnSignal(s.onRemediationSignal)
	return s
}

// Process handles one suggestion request end to end.
func (s *Service) Process(ctx context.Context, req *models.Request) *models.SuggestionResponse {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	start := s.now()
	s.deps.Monitor.RequestStarted()
	defer s.deps.Monitor.RequestFinished()

	log := s.log.WithFields(map[string]interface{}{"correlationId": req.CorrelationID})

	decision := s.deps.Selector.Select(req, s.deps.Monitor.Snapshot())
	log.Debug("tier selected", map[string]interface{}{
		"tier":       decision.Tier,
		"complexity": decision.Complexity,
		"load":       decision.Load,
	})

	ctx, cancel := context.WithTimeout(ctx, decision.TotalTimeout)
	defer cancel()

	if decision.TierConfig.CacheFirst {
		if hit, _ := s.deps.Cache.Lookup(ctx, req, decision.Tier); hit != nil {
			return s.respondFromCache(req, decision, hit, start)
		}
	}

	degraded := false

	visionStart := s.now()
	visionDescription, visionDegraded := s.analyzeImage(ctx, req, decision, log)
	visionDur := s.now().Sub(visionStart)
	degraded = degraded || visionDegraded

	genStart := s.now()
	candidates, genErr := s.generate(ctx, req, decision, visionDescription)
	genDur := s.now().Sub(genStart)
	if genErr != nil {
		stdErr := errors.Normalize(genErr)
		if stdErr.Code == errors.ErrCodeBreakerOpen {
			return s.respondBreakerOpen(req, decision, start)
		}
		log.Warn("generation failed, serving fallback", map[string]interface{}{
			"error": stdErr.Error(),
		})
		degraded = true
		candidates = nil
	}

	if len(candidates) > 0 && s.deps.Moderation != nil {
		if err := s.deps.Moderation.Check(ctx, req, candidates); err != nil {
			log.Warn("moderation gate rejected batch", map[string]interface{}{
				"error": err.Error(),
			})
			metrics.FallbacksServed.WithLabelValues("moderation_rejected").Inc()
			degraded = true
			candidates = nil
		}
	}

	pipelineStart := s.now()
	result := s.deps.Pipeline.Process(ctx, req, candidates, decision.TierConfig.QualityThreshold)
	pipelineDur := s.now().Sub(pipelineStart)

	s.attachAudio(ctx, req, decision, result.Suggestions, &degraded, log)

	if !result.FallbackUsed {
		confidence := meanConfidence(result.Suggestions)
		if err := s.deps.Cache.Store(ctx, req, decision.Tier, result.Suggestions, result.AvgScore, confidence); err != nil {
			log.Warn("cache store failed", map[string]interface{}{"error": err.Error()})
		}
	}

	latency := s.now().Sub(start)
	tags := bottleneckTags(latency, visionDur, genDur, pipelineDur, false)
	s.recordOutcome(req, decision, latency, genErr == nil, false, result, degraded, tags)

	return &models.SuggestionResponse{
		Success:     true,
		Suggestions: result.Suggestions,
		Metadata: models.ResponseMetadata{
			Tier:          decision.Tier,
			CacheHit:      false,
			LatencyMs:     latency.Milliseconds(),
			CorrelationID: req.CorrelationID,
			Degraded:      degraded,
			Fallback:      result.FallbackUsed,
		},
	}
}

// analyzeImage runs the vision stage. Failures degrade the request rather
// than failing it; generation proceeds without the description.
func (s *Service) analyzeImage(ctx context.Context, req *models.Request, decision strategy.Decision, log logger.Logger) (string, bool) {
	if !req.HasImage() {
		return "", false
	}
	provider, ok := s.deps.Providers[config.DependencyVision]
	if !ok {
		return "", false
	}

	visionCtx, cancel := context.WithTimeout(ctx, decision.VisionTimeout)
	defer cancel()

	var resp *providers.Response
	err := s.deps.Breakers.Execute(visionCtx, config.DependencyVision, func(ctx context.Context) error {
		var callErr error
		resp, callErr = provider.Invoke(ctx, providers.Call{
			Operation: "analyze",
			Tier:      decision.Tier,
			ImageData: req.ImageData,
		})
		return callErr
	})
	if err != nil {
		log.Warn("vision analysis failed, continuing without it", map[string]interface{}{
			"error": err.Error(),
		})
		return "", true
	}
	return resp.Description, false
}

func (s *Service) generate(ctx context.Context, req *models.Request, decision strategy.Decision, visionDescription string) ([]models.Suggestion, error) {
	provider, ok := s.deps.Providers[config.DependencyGeneration]
	if !ok {
		return nil, errors.NewUpstreamError(config.DependencyGeneration, errNoProvider)
	}

	call := s.deps.Prompts.Build(req, visionDescription, decision.Tier)

	genCtx, cancel := context.WithTimeout(ctx, decision.GenerationTimeout)
	defer cancel()

	var resp *providers.Response
	err := s.deps.Breakers.Execute(genCtx, config.DependencyGeneration, func(ctx context.Context) error {
		var callErr error
		resp, callErr = provider.Invoke(ctx, call)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// attachAudio synthesizes a voice rendering of the top suggestion when the
// client asked for one. Failures only degrade the response.
func (s *Service) attachAudio(ctx context.Context, req *models.Request, decision strategy.Decision, suggestions []models.Suggestion, degraded *bool, log logger.Logger) {
	if req.Preferences["audio_reply"] != "true" || len(suggestions) == 0 {
		return
	}
	provider, ok := s.deps.Providers[config.DependencyVoice]
	if !ok {
		return
	}

	var resp *providers.Response
	err := s.deps.Breakers.Execute(ctx, config.DependencyVoice, func(ctx context.Context) error {
		var callErr error
		resp, callErr = provider.Invoke(ctx, providers.Call{
			Operation: "synthesize",
			Tier:      decision.Tier,
			Context:   suggestions[0].Text,
			Tone:      req.Tone,
		})
		return callErr
	})
	if err != nil {
		log.Warn("voice synthesis failed, serving text only", map[string]interface{}{
			"error": err.Error(),
		})
		*degraded = true
		return
	}
	suggestions[0].AudioURL = resp.AudioURL
}

func (s *Service) respondFromCache(req *models.Request, decision strategy.Decision, hit *cache.Hit, start time.Time) *models.SuggestionResponse {
	latency := s.now().Sub(start)

	s.deps.Selector.RecordOutcome(decision.Tier, latency)
	s.deps.Monitor.Record(monitor.Sample{
		CorrelationID: req.CorrelationID,
		Tier:          decision.Tier,
		LatencyMs:     float64(latency.Milliseconds()),
		Success:       true,
		CacheHit:      true,
		QualityScore:  hit.Entry.QualityScore,
	})
	s.emit("request_completed", map[string]interface{}{
		"correlationId": req.CorrelationID,
		"tier":          decision.Tier,
		"cacheHit":      true,
		"cacheStrategy": hit.Strategy,
		"latencyMs":     latency.Milliseconds(),
	})

	return &models.SuggestionResponse{
		Success:     true,
		Suggestions: hit.Entry.Suggestions,
		Metadata: models.ResponseMetadata{
			Tier:          decision.Tier,
			CacheHit:      true,
			CacheStrategy: hit.Strategy,
			LatencyMs:     latency.Milliseconds(),
			CorrelationID: req.CorrelationID,
		},
	}
}

// respondBreakerOpen is the typed rejection for a hard-down generation
// dependency: not a success, explicitly fallback, and it tells the client
// when trying again is worthwhile.
func (s *Service) respondBreakerOpen(req *models.Request, decision strategy.Decision, start time.Time) *models.SuggestionResponse {
	retryAfter := s.deps.Breakers.RetryAfter(config.DependencyGeneration)
	latency := s.now().Sub(start)

	result := s.deps.Pipeline.Process(context.Background(), req, nil, decision.TierConfig.QualityThreshold)
	metrics.FallbacksServed.WithLabelValues("breaker_open").Inc()

	s.deps.Monitor.Record(monitor.Sample{
		CorrelationID: req.CorrelationID,
		Tier:          decision.Tier,
		LatencyMs:     float64(latency.Milliseconds()),
		Success:       false,
		Fallback:      true,
		Bottlenecks:   []string{monitor.BottleneckGeneration},
	})
	s.emit("request_rejected", map[string]interface{}{
		"correlationId":     req.CorrelationID,
		"tier":              decision.Tier,
		"reason":            "breaker_open",
		"retryAfterSeconds": int(retryAfter.Seconds()),
	})

	return &models.SuggestionResponse{
		Success:     false,
		Suggestions: result.Suggestions,
		Metadata: models.ResponseMetadata{
			Tier:          decision.Tier,
			LatencyMs:     latency.Milliseconds(),
			CorrelationID: req.CorrelationID,
			Fallback:      true,
			RetryAfterSec: int(retryAfter.Seconds()),
		},
	}
}

func (s *Service) recordOutcome(req *models.Request, decision strategy.Decision, latency time.Duration, success, cacheHit bool, result quality.Result, degraded bool, bottlenecks []string) {
	s.deps.Selector.RecordOutcome(decision.Tier, latency)
	s.deps.Monitor.Record(monitor.Sample{
		CorrelationID: req.CorrelationID,
		Tier:          decision.Tier,
		LatencyMs:     float64(latency.Milliseconds()),
		Success:       success,
		CacheHit:      cacheHit,
		Fallback:      result.FallbackUsed,
		QualityScore:  result.AvgScore,
		Bottlenecks:   bottlenecks,
	})
	s.emit("request_completed", map[string]interface{}{
		"correlationId": req.CorrelationID,
		"tier":          decision.Tier,
		"cacheHit":      cacheHit,
		"fallback":      result.FallbackUsed,
		"degraded":      degraded,
		"rejected":      result.Rejected,
		"qualityScore":  result.AvgScore,
		"latencyMs":     latency.Milliseconds(),
	})
}

func (s *Service) emit(event string, fields map[string]interface{}) {
	if s.deps.Telemetry != nil {
		s.deps.Telemetry.Emit(event, fields)
	}
}

// onRemediationSignal reacts to monitor advisories.
func (s *Service) onRemediationSignal(sig monitor.RemediationSignal) {
	switch sig.Kind {
	case monitor.SignalTierDowngrade:
		cooldown := config.GetSeconds(s.deps.Config.Monitor.RemediationCooldown)
		s.deps.Selector.ApplyDowngrade(cooldown)
	default:
		// Cache warming, parallel dispatch, and early termination are
		// advisory; surfaced through telemetry for operators.
	}
	s.emit("remediation_signal", map[string]interface{}{
		"kind":   sig.Kind,
		"tier":   sig.Tier,
		"reason": sig.Reason,
	})
}

// Start launches background work: cache maintenance, monitor summaries, and
// the critical-alert notification loop.
func (s *Service) Start(ctx context.Context) {
	s.deps.Cache.Start(ctx)
	s.deps.Monitor.Start(ctx)

	if s.deps.Notifier == nil {
		return
	}
	interval := config.GetSeconds(s.deps.Config.Monitor.SummaryInterval)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.notifyCriticalAlerts(ctx)
			}
		}
	}()
}

func (s *Service) notifyCriticalAlerts(ctx context.Context) {
	for _, alert := range s.deps.Monitor.Alerts() {
		if alert.Severity != monitor.SeverityCritical {
			continue
		}
		s.mu.Lock()
		_, seen := s.notified[alert.ID]
		if !seen {
			s.notified[alert.ID] = struct{}{}
		}
		s.mu.Unlock()
		if seen {
			continue
		}
		if err := s.deps.Notifier.NotifyAlert(ctx, alert); err != nil {
			s.log.Error("alert notification failed", map[string]interface{}{
				"alertId": alert.ID,
				"error":   err.Error(),
			})
		}
	}
}

// bottleneckTags names the stages that dominated the request clock. A stage
// qualifies when it consumed over half the total; uncached requests always
// carry the cache-miss tag.
func bottleneckTags(total, vision, generation, pipeline time.Duration, cacheHit bool) []string {
	var tags []string
	if total > 0 {
		half := total / 2
		if vision > half {
			tags = append(tags, monitor.BottleneckVision)
		}
		if generation > half {
			tags = append(tags, monitor.BottleneckGeneration)
		}
		if pipeline > half {
			tags = append(tags, monitor.BottleneckQuality)
		}
	}
	if !cacheHit {
		tags = append(tags, monitor.BottleneckCacheMiss)
	}
	return tags
}

func meanConfidence(suggestions []models.Suggestion) float64 {
	if len(suggestions) == 0 {
		return 0
	}
	var sum float64
	for _, s := range suggestions {
		sum += s.Confidence
	}
	return sum / float64(len(suggestions))
}
