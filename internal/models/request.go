package models

import "time"

// Request is the immutable descriptor created at ingress. All components
// read it; none mutate it.
type Request struct {
	Context          string            `json:"context"`
	Tone             string            `json:"tone"`
	Preferences      map[string]string `json:"preferences,omitempty"`
	ImageData        []byte            `json:"imageData,omitempty"`
	UserID           string            `json:"userId,omitempty"`
	CorrelationID    string            `json:"correlationId"`
	StrategyOverride string            `json:"strategyOverride,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// HasImage reports whether the request carries a binary payload.
func (r *Request) HasImage() bool {
	return len(r.ImageData) > 0
}

// Suggestion is one generated item returned to the client.
type Suggestion struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
	Tone         string  `json:"tone,omitempty"`
	Topic        string  `json:"topic,omitempty"`
	QualityScore float64 `json:"qualityScore"`
	AudioURL     string  `json:"audioUrl,omitempty"`
	Fallback     bool    `json:"fallback,omitempty"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	Tier          string `json:"tier"`
	CacheHit      bool   `json:"cacheHit"`
	CacheStrategy string `json:"cacheStrategy,omitempty"`
	LatencyMs     int64  `json:"latencyMs"`
	CorrelationID string `json:"correlationId"`
	Degraded      bool   `json:"degraded,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	RetryAfterSec int    `json:"retryAfterSeconds,omitempty"`
}

// SuggestionResponse is the ingress contract's return envelope. Callers
// always receive a well-formed suggestion list, even under total upstream
// failure.
type SuggestionResponse struct {
	Success     bool             `json:"success"`
	Suggestions []Suggestion     `json:"suggestions"`
	Metadata    ResponseMetadata `json:"metadata"`
}
