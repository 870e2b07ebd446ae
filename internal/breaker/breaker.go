package breaker

import (
	"sync"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one upstream dependency. It opens when the failure
// rate over the rolling window crosses the configured threshold, rejects
// calls while open, and closes again after a single successful probe.
type CircuitBreaker struct {
	name string
	cfg  config.BreakerConfig
	log  logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	state    State
	window   []bool // recent outcomes, true = failure
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(name string, cfg config.BreakerConfig, log logger.Logger) *CircuitBreaker {
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return &CircuitBreaker{
		name: name,
		cfg:  cfg,
		log:  log.WithFields(map[string]interface{}{"breaker": name}),
		now:  time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns a
// BREAKER_OPEN error carrying the remaining cool-off; when the reset timeout
// has elapsed it admits exactly one probe and holds everything else back.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		resetTimeout := config.GetDuration(b.cfg.ResetTimeout)
		if elapsed < resetTimeout {
			return errors.NewBreakerOpenError(b.name, ceilSeconds(resetTimeout-elapsed))
		}
		b.transitionLocked(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return errors.NewBreakerOpenError(b.name, ceilSeconds(config.GetDuration(b.cfg.ResetTimeout)))
		}
		b.probing = true
		return nil
	}
	return nil
}

// OnResult records the outcome of an admitted call. A closed breaker updates
// its rolling window and may open; a half-open probe result decides between
// closing and re-opening.
func (b *CircuitBreaker) OnResult(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.window = append(b.window, failed)
		if len(b.window) > b.cfg.WindowSize {
			b.window = b.window[len(b.window)-b.cfg.WindowSize:]
		}
		if b.shouldOpenLocked() {
			b.openLocked()
		}
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.openLocked()
			return
		}
		b.window = nil
		b.transitionLocked(StateClosed)
		b.log.Info("circuit breaker recovered", nil)
	case StateOpen:
		// Late result from a call admitted before opening; the window is
		// frozen until the next probe decides.
	}
}

func (b *CircuitBreaker) shouldOpenLocked() bool {
	if len(b.window) < b.cfg.VolumeThreshold {
		return false
	}
	failures := 0
	for _, failed := range b.window {
		if failed {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.window)) * 100
	return rate >= b.cfg.ErrorThresholdPct
}

func (b *CircuitBreaker) openLocked() {
	b.openedAt = b.now()
	b.transitionLocked(StateOpen)
	b.log.Warn("circuit breaker opened", map[string]interface{}{
		"resetTimeoutMs": b.cfg.ResetTimeout,
		"windowSize":     len(b.window),
	})
}

func (b *CircuitBreaker) transitionLocked(to State) {
	b.state = to
	metrics.BreakerTransitions.WithLabelValues(b.name, to.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ceilSeconds rounds a duration up to whole seconds so clients never retry
// before the breaker can admit a probe.
func ceilSeconds(d time.Duration) time.Duration {
	rounded := d.Truncate(time.Second)
	if rounded < d {
		rounded += time.Second
	}
	return rounded
}
