package breaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		Timeout:           1000,
		ErrorThresholdPct: 50,
		ResetTimeout:      30000,
		WindowSize:        20,
		VolumeThreshold:   5,
	}
}

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1,
		MaxDelay:    5,
		JitterPct:   0.2,
	}
}

func TestBreakerStaysClosedBelowVolumeThreshold(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(true)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(true)
	}

	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeBreakerOpen, stdErr.Code)
	assert.Equal(t, 30, stdErr.Metadata["retryAfterSeconds"])
}

func TestBreakerMixedOutcomesBelowErrorRate(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())

	// 40% failures over 10 calls, threshold is 50%
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(i%5 < 2)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())
	base := time.Now()
	b.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(true)
	}
	require.Equal(t, StateOpen, b.State())

	// Cool-off elapsed: first call becomes the probe, the next is held back.
	b.now = func() time.Time { return base.Add(31 * time.Second) }
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Error(t, b.Allow())

	b.OnResult(false)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())
	base := time.Now()
	b.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(true)
	}

	b.now = func() time.Time { return base.Add(31 * time.Second) }
	require.NoError(t, b.Allow())
	b.OnResult(true)

	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())
}

func TestBreakerRecoveryResetsWindow(t *testing.T) {
	b := NewCircuitBreaker("vision", testBreakerConfig(), logger.NewNoOpLogger())
	base := time.Now()
	b.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Allow())
		b.OnResult(true)
	}

	b.now = func() time.Time { return base.Add(31 * time.Second) }
	require.NoError(t, b.Allow())
	b.OnResult(false)
	require.Equal(t, StateClosed, b.State())

	// One failure after recovery must not reopen; the old window is gone.
	require.NoError(t, b.Allow())
	b.OnResult(true)
	assert.Equal(t, StateClosed, b.State())
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testRetryConfig(), logger.NewNoOpLogger(), func(ctx context.Context) error {
		attempts++
		return errors.NewUpstreamClientError("vision", 422, "bad payload")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testRetryConfig(), logger.NewNoOpLogger(), func(ctx context.Context) error {
		attempts++
		return errors.NewUpstreamError("vision", fmt.Errorf("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testRetryConfig(), logger.NewNoOpLogger(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.NewUpstreamError("vision", fmt.Errorf("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, testRetryConfig(), logger.NewNoOpLogger(), func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.NewUpstreamError("vision", fmt.Errorf("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestManagerRetryExhaustionCountsOneBreakerFailure(t *testing.T) {
	cfgs := map[string]config.BreakerConfig{"vision": testBreakerConfig()}
	m := NewManager(cfgs, testRetryConfig(), logger.NewNoOpLogger())

	calls := 0
	err := m.Execute(context.Background(), "vision", func(ctx context.Context) error {
		calls++
		return errors.NewUpstreamError("vision", fmt.Errorf("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "all retry attempts are used")
	assert.Equal(t, StateClosed, m.State("vision"), "one exhaustion is one window entry, below volume threshold")
}

func TestManagerOpensAfterRepeatedExhaustion(t *testing.T) {
	cfgs := map[string]config.BreakerConfig{"vision": testBreakerConfig()}
	m := NewManager(cfgs, testRetryConfig(), logger.NewNoOpLogger())

	upstreamCalls := 0
	for i := 0; i < 5; i++ {
		_ = m.Execute(context.Background(), "vision", func(ctx context.Context) error {
			upstreamCalls++
			return errors.NewUpstreamError("vision", fmt.Errorf("boom"))
		})
	}
	require.Equal(t, StateOpen, m.State("vision"))
	callsBeforeOpen := upstreamCalls

	// Open breaker short-circuits: the upstream is never invoked.
	err := m.Execute(context.Background(), "vision", func(ctx context.Context) error {
		upstreamCalls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBreakerOpen, errors.Normalize(err).Code)
	assert.Equal(t, callsBeforeOpen, upstreamCalls)
	assert.Positive(t, m.RetryAfter("vision"))
}

func TestManagerClientErrorsDoNotTripBreaker(t *testing.T) {
	cfgs := map[string]config.BreakerConfig{"generation": testBreakerConfig()}
	m := NewManager(cfgs, testRetryConfig(), logger.NewNoOpLogger())

	for i := 0; i < 10; i++ {
		err := m.Execute(context.Background(), "generation", func(ctx context.Context) error {
			return errors.NewUpstreamClientError("generation", 400, "bad request")
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateClosed, m.State("generation"))
}

func TestManagerWrapsPlainErrors(t *testing.T) {
	cfgs := map[string]config.BreakerConfig{"voice": testBreakerConfig()}
	m := NewManager(cfgs, testRetryConfig(), logger.NewNoOpLogger())

	err := m.Execute(context.Background(), "voice", func(ctx context.Context) error {
		return fmt.Errorf("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstreamError, errors.Normalize(err).Code)
}

func TestManagerUnknownDependencyGetsDefaults(t *testing.T) {
	m := NewManager(nil, testRetryConfig(), logger.NewNoOpLogger())

	err := m.Execute(context.Background(), "moderation", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateClosed, m.State("moderation"))
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, ceilSeconds(30*time.Second))
	assert.Equal(t, 30*time.Second, ceilSeconds(29*time.Second+time.Millisecond))
	assert.Equal(t, time.Second, ceilSeconds(10*time.Millisecond))
}
