package orchestrator

import (
	"context"
	"fmt"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/providers"

	"github.com/google/uuid"
)

var errNoProvider = fmt.Errorf("no provider configured")

// Stream proxies a generation stream to the caller. The breaker admits the
// stream as a single call; its outcome is recorded when the stream ends.
// Streamed output bypasses the quality pipeline and is never cached.
func (s *Service) Stream(ctx context.Context, req *models.Request) (<-chan providers.Chunk, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}

	provider, ok := s.deps.Providers[config.DependencyGeneration]
	if !ok {
		return nil, errors.NewUpstreamError(config.DependencyGeneration, errNoProvider)
	}

	decision := s.deps.Selector.Select(req, s.deps.Monitor.Snapshot())

	done, err := s.deps.Breakers.Acquire(config.DependencyGeneration)
	if err != nil {
		return nil, err
	}

	call := s.deps.Prompts.Build(req, "", decision.Tier)
	upstream, err := provider.Stream(ctx, call)
	if err != nil {
		done(true)
		return nil, err
	}

	s.emit("stream_started", map[string]interface{}{
		"correlationId": req.CorrelationID,
		"tier":          decision.Tier,
	})

	out := make(chan providers.Chunk)
	go func() {
		failed := false
		// The breaker slot is released even when the caller walks away
		// mid-stream; a disconnect alone is not an upstream failure.
		defer func() { done(failed) }()
		defer close(out)
		for {
			var chunk providers.Chunk
			var ok bool
			select {
			case chunk, ok = <-upstream:
			case <-ctx.Done():
				return
			}
			if !ok {
				return
			}
			if chunk.Err != nil {
				failed = true
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
