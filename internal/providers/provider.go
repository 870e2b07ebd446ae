package providers

import (
	"context"

	"ai-orchestrator/internal/models"
)

// Call is one unit of upstream work.
type Call struct {
	Operation string                 `json:"operation"`
	Tier      string                 `json:"tier,omitempty"`
	Context   string                 `json:"context,omitempty"`
	Tone      string                 `json:"tone,omitempty"`
	ImageData []byte                 `json:"imageData,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Response is the decoded upstream result. Fields are populated according to
// the operation: vision fills Description, generation fills Suggestions.
type Response struct {
	Suggestions []models.Suggestion `json:"suggestions,omitempty"`
	Description string              `json:"description,omitempty"`
	Confidence  float64             `json:"confidence,omitempty"`
	AudioURL    string              `json:"audioUrl,omitempty"`
	Flagged     bool                `json:"flagged,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// Chunk is one streaming delta. The terminal chunk has Done set; no further
// chunks follow it and the channel is closed.
type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// Provider is an upstream AI dependency.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, call Call) (*Response, error)
	Stream(ctx context.Context, call Call) (<-chan Chunk, error)
}
