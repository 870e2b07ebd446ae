package quality

import (
	"encoding/json"
	"fmt"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// StructuralValidator checks that a candidate suggestion is shaped like one:
// text inside the length bounds, confidence inside [0,1]. The schema is
// compiled once at startup.
type StructuralValidator struct {
	schema *gojsonschema.Schema
}

func NewStructuralValidator(cfg config.QualityConfig) (*StructuralValidator, error) {
	doc := map[string]interface{}{
		"type":     "object",
		"required": []string{"text", "confidence"},
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":      "string",
				"minLength": cfg.MinTextLength,
				"maxLength": cfg.MaxTextLength,
			},
			"confidence": map[string]interface{}{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"reasoning": map[string]interface{}{"type": "string"},
			"tone":      map[string]interface{}{"type": "string"},
			"topic":     map[string]interface{}{"type": "string"},
		},
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile suggestion schema: %w", err)
	}
	return &StructuralValidator{schema: schema}, nil
}

// Violations returns one description per schema violation, empty when the
// suggestion is structurally sound. Violations do not abort processing; the
// pipeline folds them into the quality score as penalties.
func (v *StructuralValidator) Violations(s models.Suggestion) []string {
	raw, err := json.Marshal(s)
	if err != nil {
		return []string{errors.NewValidationFailedError(err.Error()).Details}
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []string{errors.NewValidationFailedError(err.Error()).Details}
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations
}
