package breaker

import (
	"context"
	"sync"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
)

// Manager owns one circuit breaker per upstream dependency and wraps each
// admitted call in retry with backoff. A full retry exhaustion counts as a
// single failure against the breaker.
type Manager struct {
	retry config.RetryConfig
	log   logger.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults config.BreakerConfig
}

func NewManager(breakerCfgs map[string]config.BreakerConfig, retry config.RetryConfig, log logger.Logger) *Manager {
	m := &Manager{
		retry:    retry,
		log:      log,
		breakers: make(map[string]*CircuitBreaker, len(breakerCfgs)),
		defaults: config.BreakerConfig{
			Timeout:           10000,
			ErrorThresholdPct: 50,
			ResetTimeout:      30000,
			WindowSize:        20,
			VolumeThreshold:   5,
		},
	}
	for name, cfg := range breakerCfgs {
		m.breakers[name] = NewCircuitBreaker(name, cfg, log)
	}
	return m
}

// Execute runs call against the named dependency under breaker and retry
// protection. Each attempt gets the breaker's per-call timeout; client-class
// errors abort retries immediately and do not count against the breaker.
func (m *Manager) Execute(ctx context.Context, dependency string, call func(context.Context) error) error {
	b := m.breaker(dependency)

	if err := b.Allow(); err != nil {
		metrics.UpstreamCalls.WithLabelValues(dependency, "rejected").Inc()
		return err
	}

	timeout := config.GetDuration(b.cfg.Timeout)
	err := Retry(ctx, m.retry, m.log, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		callErr := call(callCtx)
		if callErr == nil {
			return nil
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return errors.NewUpstreamTimeoutError(dependency)
		}
		if _, ok := callErr.(*errors.StandardError); !ok {
			return errors.NewUpstreamError(dependency, callErr)
		}
		return callErr
	})

	if err == nil {
		b.OnResult(false)
		metrics.UpstreamCalls.WithLabelValues(dependency, "success").Inc()
		return nil
	}

	// A 4xx-class rejection means the dependency itself is healthy; it must
	// not push the breaker toward open.
	stdErr := errors.Normalize(err)
	clientError := stdErr.StatusCode >= 400 && stdErr.StatusCode < 500
	b.OnResult(!clientError)

	outcome := "failure"
	if clientError {
		outcome = "client_error"
	} else if errors.IsTimeout(err) {
		outcome = "timeout"
	}
	metrics.UpstreamCalls.WithLabelValues(dependency, outcome).Inc()
	return err
}

// Acquire admits a long-lived call, such as a stream, outside Execute's retry
// wrapper. The caller must invoke the returned done func exactly once with
// the call's outcome.
func (m *Manager) Acquire(dependency string) (func(failed bool), error) {
	b := m.breaker(dependency)
	if err := b.Allow(); err != nil {
		metrics.UpstreamCalls.WithLabelValues(dependency, "rejected").Inc()
		return nil, err
	}
	return func(failed bool) {
		b.OnResult(failed)
		outcome := "success"
		if failed {
			outcome = "failure"
		}
		metrics.UpstreamCalls.WithLabelValues(dependency, outcome).Inc()
	}, nil
}

// State returns the named breaker's current state, closed for unknown names.
func (m *Manager) State(dependency string) State {
	m.mu.RLock()
	b, ok := m.breakers[dependency]
	m.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// States returns a snapshot of every breaker's state for health reporting.
func (m *Manager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.State().String()
	}
	return out
}

// breaker returns the dependency's breaker, creating one with defaults for
// dependencies that were not configured up front.
func (m *Manager) breaker(dependency string) *CircuitBreaker {
	m.mu.RLock()
	b, ok := m.breakers[dependency]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[dependency]; ok {
		return b
	}
	b = NewCircuitBreaker(dependency, m.defaults, m.log)
	m.breakers[dependency] = b
	return b
}

// RetryAfter returns the remaining cool-off for an open breaker, zero for any
// other state. Used to populate fallback responses.
func (m *Manager) RetryAfter(dependency string) time.Duration {
	m.mu.RLock()
	b, ok := m.breakers[dependency]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	remaining := config.GetDuration(b.cfg.ResetTimeout) - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return ceilSeconds(remaining)
}
