package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"

	"github.com/google/uuid"
)

// Sample is one finished request observation. Bottlenecks carries the tags of
// the stages that dominated the request's latency; remediation signal choice
// keys off them.
type Sample struct {
	CorrelationID string
	Tier          string
	LatencyMs     float64
	Success       bool
	CacheHit      bool
	Fallback      bool
	QualityScore  float64
	Bottlenecks   []string
	Timestamp     time.Time
}

// Bottleneck tags attached to samples by the request pipeline.
const (
	BottleneckVision     = "vision"
	BottleneckGeneration = "generation"
	BottleneckQuality    = "quality"
	BottleneckCacheMiss  = "cache_miss"
)

// Severity levels for performance alerts.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is an actionable performance finding. Alerts are advisory; they never
// block request processing.
type Alert struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Tier      string    `json:"tier"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Remediation signal kinds emitted when auto-remediation is enabled.
const (
	SignalCacheWarming     = "cache_warming"
	SignalTierDowngrade    = "tier_downgrade"
	SignalParallelDispatch = "parallel_dispatch"
	SignalEarlyTermination = "early_termination"
)

// RemediationSignal is an advisory hint for other components. Receivers are
// free to ignore it.
type RemediationSignal struct {
	Kind      string    `json:"kind"`
	Tier      string    `json:"tier"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoadSnapshot is the monitor's view of current system pressure, consumed by
// the strategy selector.
type LoadSnapshot struct {
	ActiveRequests int
	AvgLatencyMs   float64
	ErrorRate      float64
}

// TierReport summarizes one tier's recent behavior.
type TierReport struct {
	Tier            string  `json:"tier"`
	Requests        int64   `json:"requests"`
	Failures        int64   `json:"failures"`
	CacheHits       int64   `json:"cacheHits"`
	EMALatencyMs    float64 `json:"emaLatencyMs"`
	P50Ms           float64 `json:"p50Ms"`
	P95Ms           float64 `json:"p95Ms"`
	P99Ms           float64 `json:"p99Ms"`
	AvgQuality      float64 `json:"avgQuality"`
	QualityPassRate float64 `json:"qualityPassRate"`
	TargetMet       bool    `json:"targetMet"`
}

type tierStats struct {
	latencies    *RingBuffer
	quality      *RingBuffer
	emaLatency   float64
	requests     int64
	failures     int64
	cacheHits    int64
	qualityPass  int64
	qualityTotal int64
}

// Monitor aggregates request outcomes into latency percentiles, quality
// trends, load signals, and alerts.
type Monitor struct {
	cfg config.MonitorConfig
	log logger.Logger
	now func() time.Time

	mu              sync.RWMutex
	tiers           map[string]*tierStats
	outcomes        *RingBuffer // 1=failure, 0=success, recent requests
	arrivals        []time.Time // request arrival times inside throughput window
	active          int
	alerts          []Alert
	lastAlert       map[string]time.Time // tier+severity -> last raise
	lastRemediation map[string]time.Time // signal kind -> last emit
	listeners       []func(RemediationSignal)
}

func New(cfg config.MonitorConfig, log logger.Logger) *Monitor {
	return &Monitor{
		cfg:             cfg,
		log:             log.WithFields(map[string]interface{}{"component": "monitor"}),
		now:             time.Now,
		tiers:           make(map[string]*tierStats),
		outcomes:        NewRingBuffer(cfg.LatencyBufferSize),
		lastAlert:       make(map[string]time.Time),
		lastRemediation: make(map[string]time.Time),
	}
}

// OnSignal registers a remediation signal listener. Listeners run
// synchronously on the recording goroutine and must be fast.
func (m *Monitor) OnSignal(fn func(RemediationSignal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// RequestStarted marks one request in flight.
func (m *Monitor) RequestStarted() {
	m.mu.Lock()
	m.active++
	now := m.now()
	m.arrivals = append(m.arrivals, now)
	m.pruneArrivalsLocked(now)
	m.mu.Unlock()
	metrics.ActiveRequests.Inc()
}

// RequestFinished marks one request as no longer in flight.
func (m *Monitor) RequestFinished() {
	m.mu.Lock()
	if m.active > 0 {
		m.active--
	}
	m.mu.Unlock()
	metrics.ActiveRequests.Dec()
}

// Record ingests one finished request sample, updates aggregates, and raises
// alerts when tier thresholds are crossed.
func (m *Monitor) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = m.now()
	}

	m.mu.Lock()
	st := m.tierLocked(s.Tier)
	st.requests++
	if !s.Success {
		st.failures++
		m.outcomes.Add(1)
	} else {
		m.outcomes.Add(0)
	}
	if s.CacheHit {
		st.cacheHits++
	}

	st.latencies.Add(s.LatencyMs)
	if st.emaLatency == 0 {
		st.emaLatency = s.LatencyMs
	} else {
		st.emaLatency = m.cfg.EMAAlpha*s.LatencyMs + (1-m.cfg.EMAAlpha)*st.emaLatency
	}

	if s.QualityScore > 0 {
		st.quality.Add(s.QualityScore)
		st.qualityTotal++
		if s.QualityScore >= m.cfg.QualityPassThreshold {
			st.qualityPass++
		}
	}

	signals := m.evaluateLocked(s)
	listeners := m.listeners
	m.mu.Unlock()

	outcome := "success"
	if !s.Success {
		outcome = "failure"
	}
	metrics.RequestsTotal.WithLabelValues(s.Tier, outcome).Inc()
	metrics.RequestDuration.WithLabelValues(s.Tier).Observe(s.LatencyMs / 1000)
	if s.QualityScore > 0 {
		metrics.QualityScore.WithLabelValues(s.Tier).Observe(s.QualityScore)
	}

	for _, sig := range signals {
		metrics.RemediationSignals.WithLabelValues(sig.Kind).Inc()
		m.log.Info("remediation signal emitted", map[string]interface{}{
			"kind":   sig.Kind,
			"tier":   sig.Tier,
			"reason": sig.Reason,
		})
		for _, fn := range listeners {
			fn(sig)
		}
	}
}

// evaluateLocked checks thresholds after a sample lands and returns any
// remediation signals to emit. Caller holds the write lock.
func (m *Monitor) evaluateLocked(s Sample) []RemediationSignal {
	thresholds, ok := m.cfg.Thresholds[s.Tier]
	if !ok {
		return nil
	}
	now := m.now()

	switch {
	case s.LatencyMs > thresholds.Critical:
		m.raiseAlertLocked(s.Tier, SeverityCritical, "latency", s.LatencyMs, thresholds.Critical, now)
		kind, reason := signalForBottlenecks(s.Bottlenecks)
		if sig := m.remediateLocked(kind, s.Tier, reason, now); sig != nil {
			return []RemediationSignal{*sig}
		}
	case s.LatencyMs > thresholds.Warning:
		m.raiseAlertLocked(s.Tier, SeverityWarning, "latency", s.LatencyMs, thresholds.Warning, now)
	}

	return nil
}

// signalForBottlenecks picks the one remediation most likely to relieve the
// sample's dominant bottleneck. Upstream stages outrank the cache-miss tag,
// which every uncached request carries.
func signalForBottlenecks(tags []string) (kind, reason string) {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	switch {
	case set[BottleneckGeneration]:
		return SignalTierDowngrade, "generation dominated the latency budget"
	case set[BottleneckVision]:
		return SignalParallelDispatch, "vision analysis dominated the latency budget"
	case set[BottleneckQuality]:
		return SignalEarlyTermination, "quality validation dominated the latency budget"
	case set[BottleneckCacheMiss]:
		return SignalCacheWarming, "critical latency without a cache hit"
	default:
		return SignalTierDowngrade, "latency above critical threshold"
	}
}

// raiseAlertLocked records an alert unless one of the same tier and severity
// was raised inside the cooldown window.
func (m *Monitor) raiseAlertLocked(tier, severity, metric string, value, threshold float64, now time.Time) {
	key := tier + ":" + severity
	cooldown := config.GetSeconds(m.cfg.RemediationCooldown)
	if last, ok := m.lastAlert[key]; ok && now.Sub(last) < cooldown {
		return
	}
	m.lastAlert[key] = now

	alert := Alert{
		ID:        uuid.New().String(),
		Severity:  severity,
		Tier:      tier,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Message:   "latency threshold exceeded for tier " + tier,
		CreatedAt: now,
	}
	m.alerts = append(m.alerts, alert)
	metrics.AlertsRaised.WithLabelValues(severity, tier).Inc()

	m.log.Warn("performance alert raised", map[string]interface{}{
		"alertId":   alert.ID,
		"severity":  severity,
		"tier":      tier,
		"metric":    metric,
		"value":     value,
		"threshold": threshold,
	})
}

// remediateLocked returns a signal when auto-remediation is on and the kind's
// cooldown has elapsed, nil otherwise.
func (m *Monitor) remediateLocked(kind, tier, reason string, now time.Time) *RemediationSignal {
	if !m.cfg.AutoRemediation {
		return nil
	}
	cooldown := config.GetSeconds(m.cfg.RemediationCooldown)
	if last, ok := m.lastRemediation[kind]; ok && now.Sub(last) < cooldown {
		return nil
	}
	m.lastRemediation[kind] = now
	return &RemediationSignal{Kind: kind, Tier: tier, Reason: reason, CreatedAt: now}
}

func (m *Monitor) tierLocked(tier string) *tierStats {
	st, ok := m.tiers[tier]
	if !ok {
		st = &tierStats{
			latencies: NewRingBuffer(m.cfg.LatencyBufferSize),
			quality:   NewRingBuffer(m.cfg.QualityBufferSize),
		}
		m.tiers[tier] = st
	}
	return st
}

// Percentiles returns p50/p95/p99 latency for the tier, zeros when no samples
// exist yet.
func (m *Monitor) Percentiles(tier string) (p50, p95, p99 float64) {
	m.mu.RLock()
	st, ok := m.tiers[tier]
	if !ok {
		m.mu.RUnlock()
		return 0, 0, 0
	}
	values := st.latencies.Values()
	m.mu.RUnlock()

	if len(values) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.5), percentile(values, 0.95), percentile(values, 0.99)
}

// percentile uses the nearest-rank method on a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot returns the current load view for the strategy selector.
func (m *Monitor) Snapshot() LoadSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latencySum float64
	var tiersWithData int
	for _, st := range m.tiers {
		if st.emaLatency > 0 {
			latencySum += st.emaLatency
			tiersWithData++
		}
	}
	avgLatency := 0.0
	if tiersWithData > 0 {
		avgLatency = latencySum / float64(tiersWithData)
	}

	return LoadSnapshot{
		ActiveRequests: m.active,
		AvgLatencyMs:   avgLatency,
		ErrorRate:      m.outcomes.Mean(),
	}
}

// Throughput returns requests per second over the configured window.
func (m *Monitor) Throughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneArrivalsLocked(now)
	window := float64(m.cfg.ThroughputWindow)
	if window <= 0 {
		return 0
	}
	return float64(len(m.arrivals)) / window
}

func (m *Monitor) pruneArrivalsLocked(now time.Time) {
	cutoff := now.Add(-config.GetSeconds(m.cfg.ThroughputWindow))
	i := 0
	for ; i < len(m.arrivals); i++ {
		if m.arrivals[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		m.arrivals = append(m.arrivals[:0], m.arrivals[i:]...)
	}
}

// Alerts returns active alerts, oldest first. Alerts older than the configured
// max age are dropped.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneAlertsLocked(m.now())
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *Monitor) pruneAlertsLocked(now time.Time) {
	maxAge := time.Duration(m.cfg.AlertMaxAgeHours) * time.Hour
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if now.Sub(a.CreatedAt) < maxAge {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
}

// Report returns per-tier summaries for all tiers seen so far.
func (m *Monitor) Report() []TierReport {
	m.mu.RLock()
	names := make([]string, 0, len(m.tiers))
	for name := range m.tiers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	reports := make([]TierReport, 0, len(names))
	for _, name := range names {
		reports = append(reports, m.TierReport(name))
	}
	return reports
}

// TierReport summarizes one tier. Zero-valued when the tier has no samples.
func (m *Monitor) TierReport(tier string) TierReport {
	p50, p95, p99 := m.Percentiles(tier)

	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.tiers[tier]
	if !ok {
		return TierReport{Tier: tier}
	}

	passRate := 0.0
	if st.qualityTotal > 0 {
		passRate = float64(st.qualityPass) / float64(st.qualityTotal)
	}

	targetMet := true
	if thresholds, found := m.cfg.Thresholds[tier]; found && st.emaLatency > thresholds.Target {
		targetMet = false
	}

	return TierReport{
		Tier:            tier,
		Requests:        st.requests,
		Failures:        st.failures,
		CacheHits:       st.cacheHits,
		EMALatencyMs:    st.emaLatency,
		P50Ms:           p50,
		P95Ms:           p95,
		P99Ms:           p99,
		AvgQuality:      st.quality.Mean(),
		QualityPassRate: passRate,
		TargetMet:       targetMet,
	}
}

// Start runs periodic maintenance (summary logging, alert pruning) until the
// context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	interval := config.GetSeconds(m.cfg.SummaryInterval)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

func (m *Monitor) runMaintenance() {
	m.mu.Lock()
	m.pruneAlertsLocked(m.now())
	m.mu.Unlock()

	for _, report := range m.Report() {
		m.log.Info("tier performance summary", map[string]interface{}{
			"tier":            report.Tier,
			"requests":        report.Requests,
			"failures":        report.Failures,
			"emaLatencyMs":    report.EMALatencyMs,
			"p95Ms":           report.P95Ms,
			"qualityPassRate": report.QualityPassRate,
			"targetMet":       report.TargetMet,
		})
	}
}
