package breaker

import (
	"context"
	"math/rand"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
)

// Retry runs op with exponential backoff and jitter. It stops early on
// non-retryable errors and on context cancellation. The returned error is the
// last error observed.
func Retry(ctx context.Context, cfg config.RetryConfig, log logger.Logger, op func(context.Context) error) error {
	delay := config.GetDuration(cfg.BaseDelay)
	maxDelay := config.GetDuration(cfg.MaxDelay)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		wait := applyJitter(delay, cfg.JitterPct)
		log.Debug("upstream call failed, backing off", map[string]interface{}{
			"attempt": attempt,
			"waitMs":  wait.Milliseconds(),
			"error":   lastErr.Error(),
		})

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(wait):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lastErr
}

// applyJitter spreads the delay by up to ±pct to avoid retry storms.
func applyJitter(d time.Duration, pct float64) time.Duration {
	if pct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * pct * float64(d)
	return d + time.Duration(delta)
}
