package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
)

// Indexer is the document store behind the sink. database.ElasticsearchClient
// satisfies it.
type Indexer interface {
	Index(ctx context.Context, index string, body io.Reader) error
}

// Sink emits flat key/value telemetry events. Every event is logged; when an
// index backend is configured, events are also shipped there asynchronously.
// Shipping failures are logged and dropped, never surfaced to callers.
type Sink struct {
	log     logger.Logger
	indexer Indexer
	index   string
	enabled bool
	now     func() time.Time
}

func New(cfg config.TelemetryConfig, indexer Indexer, log logger.Logger) *Sink {
	return &Sink{
		log:     log.WithFields(map[string]interface{}{"component": "telemetry"}),
		indexer: indexer,
		index:   cfg.Elasticsearch.Index,
		enabled: cfg.Elasticsearch.Enabled && indexer != nil,
		now:     time.Now,
	}
}

// Emit records one event. fields must be flat values; nested structures are
// flattened into their JSON rendering by the log encoder.
func (s *Sink) Emit(eventType string, fields map[string]interface{}) {
	doc := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		doc[k] = v
	}
	doc["event"] = eventType
	doc["@timestamp"] = s.now().UTC().Format(time.RFC3339Nano)

	s.log.Info("telemetry event", doc)

	if !s.enabled {
		return
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		s.log.Warn("telemetry event not serializable", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.indexer.Index(ctx, s.index, bytes.NewReader(raw)); err != nil {
			s.log.Warn("telemetry index write failed", map[string]interface{}{
				"event": eventType,
				"error": err.Error(),
			})
		}
	}()
}
