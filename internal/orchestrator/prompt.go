package orchestrator

import (
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/providers"
)

// PromptBuilder turns a request plus any vision analysis into the generation
// call sent upstream.
type PromptBuilder interface {
	Build(req *models.Request, visionDescription string, tier string) providers.Call
}

type defaultPromptBuilder struct{}

// NewPromptBuilder returns the standard prompt builder.
func NewPromptBuilder() PromptBuilder {
	return defaultPromptBuilder{}
}

func (defaultPromptBuilder) Build(req *models.Request, visionDescription string, tier string) providers.Call {
	extra := map[string]interface{}{}
	if visionDescription != "" {
		extra["visionDescription"] = visionDescription
	}
	if len(req.Preferences) > 0 {
		extra["preferences"] = req.Preferences
	}
	return providers.Call{
		Operation: "generate",
		Tier:      tier,
		Context:   req.Context,
		Tone:      req.Tone,
		Extra:     extra,
	}
}
