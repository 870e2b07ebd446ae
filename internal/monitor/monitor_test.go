package monitor

import (
	"testing"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		LatencyBufferSize:    1000,
		QualityBufferSize:    100,
		QualityPassThreshold: 0.7,
		EMAAlpha:             0.2,
		AutoRemediation:      true,
		RemediationCooldown:  300,
		AlertMaxAgeHours:     24,
		SummaryInterval:      60,
		ThroughputWindow:     60,
		Thresholds: map[string]config.LatencyThresholds{
			config.TierStandard: {Target: 6000, Warning: 9000, Critical: 14000},
			config.TierKeyboard: {Target: 1000, Warning: 1500, Critical: 2500},
		},
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, v := range []float64{1, 2, 3, 4} {
		rb.Add(v)
	}

	assert.Equal(t, 3, rb.Len())
	assert.ElementsMatch(t, []float64{4, 2, 3}, rb.Values())
}

func TestRingBufferMean(t *testing.T) {
	rb := NewRingBuffer(10)
	assert.Equal(t, 0.0, rb.Mean())

	rb.Add(2)
	rb.Add(4)
	assert.Equal(t, 3.0, rb.Mean())
}

func TestPercentilesNearestRank(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	for v := 100.0; v <= 1000; v += 100 {
		m.Record(Sample{Tier: config.TierStandard, LatencyMs: v, Success: true})
	}

	p50, p95, p99 := m.Percentiles(config.TierStandard)
	assert.Equal(t, 500.0, p50)
	assert.Equal(t, 1000.0, p95)
	assert.Equal(t, 1000.0, p99)
}

func TestPercentilesUnknownTier(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	p50, p95, p99 := m.Percentiles("nope")
	assert.Zero(t, p50)
	assert.Zero(t, p95)
	assert.Zero(t, p99)
}

func TestCriticalLatencyRaisesAlert(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true})

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, config.TierStandard, alerts[0].Tier)
	assert.NotEmpty(t, alerts[0].ID)
}

func TestAlertCooldownSuppressesDuplicates(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	for i := 0; i < 5; i++ {
		m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true})
	}

	assert.Len(t, m.Alerts(), 1)
}

func TestAlertsExpireAfterMaxAge(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())
	base := time.Now()
	m.now = func() time.Time { return base }

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true})
	require.Len(t, m.Alerts(), 1)

	m.now = func() time.Time { return base.Add(25 * time.Hour) }
	assert.Empty(t, m.Alerts())
}

func TestRemediationSignalEmittedOnceWithinCooldown(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	var signals []RemediationSignal
	m.OnSignal(func(s RemediationSignal) { signals = append(signals, s) })

	for i := 0; i < 3; i++ {
		m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true})
	}

	require.Len(t, signals, 1)
	assert.Equal(t, SignalTierDowngrade, signals[0].Kind)
	assert.Equal(t, config.TierStandard, signals[0].Tier)
}

func TestRemediationSignalKeyedToBottleneckTags(t *testing.T) {
	tests := []struct {
		name        string
		bottlenecks []string
		expected    string
	}{
		{"generation dominates", []string{BottleneckCacheMiss, BottleneckGeneration}, SignalTierDowngrade},
		{"vision dominates", []string{BottleneckCacheMiss, BottleneckVision}, SignalParallelDispatch},
		{"quality dominates", []string{BottleneckQuality}, SignalEarlyTermination},
		{"only a cache miss", []string{BottleneckCacheMiss}, SignalCacheWarming},
		{"untagged", nil, SignalTierDowngrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(testMonitorConfig(), logger.NewNoOpLogger())
			var signals []RemediationSignal
			m.OnSignal(func(s RemediationSignal) { signals = append(signals, s) })

			m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true, Bottlenecks: tt.bottlenecks})

			require.Len(t, signals, 1)
			assert.Equal(t, tt.expected, signals[0].Kind)
		})
	}
}

func TestWarningLatencyAlertsWithoutRemediation(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())
	var signals []RemediationSignal
	m.OnSignal(func(s RemediationSignal) { signals = append(signals, s) })

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 10000, Success: true, Bottlenecks: []string{BottleneckGeneration}})

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Empty(t, signals)
}

func TestSlowSampleAlertsDespiteCalmAverage(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	for i := 0; i < 50; i++ {
		m.Record(Sample{Tier: config.TierStandard, LatencyMs: 500, Success: true})
	}
	require.Empty(t, m.Alerts())

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true, Bottlenecks: []string{BottleneckGeneration}})

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity, "one pathological request must alert even when the moving average is calm")
}

func TestRemediationDisabled(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.AutoRemediation = false
	m := New(cfg, logger.NewNoOpLogger())

	var signals []RemediationSignal
	m.OnSignal(func(s RemediationSignal) { signals = append(signals, s) })

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 20000, Success: true})

	assert.Empty(t, signals)
	assert.Len(t, m.Alerts(), 1, "alerts still fire when remediation is off")
}

func TestSnapshotReflectsOutcomes(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	m.RequestStarted()
	m.RequestStarted()
	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 1000, Success: true})
	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 1000, Success: false})

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.ActiveRequests)
	assert.Equal(t, 0.5, snap.ErrorRate)
	assert.InDelta(t, 1000.0, snap.AvgLatencyMs, 0.001)

	m.RequestFinished()
	assert.Equal(t, 1, m.Snapshot().ActiveRequests)
}

func TestEMATracksLatency(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	m.Record(Sample{Tier: config.TierKeyboard, LatencyMs: 100, Success: true})
	m.Record(Sample{Tier: config.TierKeyboard, LatencyMs: 200, Success: true})

	report := m.TierReport(config.TierKeyboard)
	// ema = 0.2*200 + 0.8*100
	assert.InDelta(t, 120.0, report.EMALatencyMs, 0.001)
	assert.True(t, report.TargetMet)
}

func TestQualityPassRate(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())

	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 100, Success: true, QualityScore: 0.9})
	m.Record(Sample{Tier: config.TierStandard, LatencyMs: 100, Success: true, QualityScore: 0.5})

	report := m.TierReport(config.TierStandard)
	assert.Equal(t, 0.5, report.QualityPassRate)
	assert.InDelta(t, 0.7, report.AvgQuality, 0.001)
}

func TestThroughputCountsRecentArrivals(t *testing.T) {
	m := New(testMonitorConfig(), logger.NewNoOpLogger())
	base := time.Now()
	m.now = func() time.Time { return base }

	for i := 0; i < 30; i++ {
		m.RequestStarted()
	}
	assert.InDelta(t, 0.5, m.Throughput(), 0.001)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Zero(t, m.Throughput())
}
