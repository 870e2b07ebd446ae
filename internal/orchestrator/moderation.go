package orchestrator

import (
	"context"

	"ai-orchestrator/internal/breaker"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/providers"
)

// ModerationFilter gates generated content before it reaches clients. A nil
// filter means moderation is disabled.
type ModerationFilter interface {
	Check(ctx context.Context, req *models.Request, suggestions []models.Suggestion) error
}

// providerModeration checks a whole batch with one upstream call, routed
// through the dependency's circuit breaker.
type providerModeration struct {
	provider   providers.Provider
	breakers   *breaker.Manager
	dependency string
}

// NewProviderModeration builds a filter backed by an upstream moderation
// endpoint.
func NewProviderModeration(p providers.Provider, breakers *breaker.Manager, dependency string) ModerationFilter {
	return &providerModeration{provider: p, breakers: breakers, dependency: dependency}
}

func (m *providerModeration) Check(ctx context.Context, req *models.Request, suggestions []models.Suggestion) error {
	texts := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		texts = append(texts, s.Text)
	}

	var resp *providers.Response
	err := m.breakers.Execute(ctx, m.dependency, func(ctx context.Context) error {
		var callErr error
		resp, callErr = m.provider.Invoke(ctx, providers.Call{
			Operation: "moderate",
			Context:   req.Context,
			Extra:     map[string]interface{}{"texts": texts},
		})
		return callErr
	})
	if err != nil {
		return err
	}
	if resp.Flagged {
		return errors.NewModerationRejectedError(resp.Reason)
	}
	return nil
}
