package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
)

// HTTPProvider talks to one upstream service over JSON/HTTP. The operation
// name becomes the URL path segment; streaming uses the same path with a
// /stream suffix and newline-delimited "data:" events.
type HTTPProvider struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	log    logger.Logger
}

func NewHTTPProvider(name string, cfg config.ProviderConfig, log logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		name: name,
		cfg:  cfg,
		// Per-call deadlines come from the caller's context; the client
		// timeout is only a last-ditch cap.
		client: &http.Client{Timeout: config.GetDuration(cfg.Timeout)},
		log:    log.WithFields(map[string]interface{}{"provider": name}),
	}
}

func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) Invoke(ctx context.Context, call Call) (*Response, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(call.Operation), bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewUpstreamTimeoutError(p.name)
		}
		return nil, errors.NewUpstreamError(p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewUpstreamError(p.name, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var decoded Response
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, errors.NewUpstreamError(p.name, fmt.Errorf("malformed response body: %w", err))
		}
		return &decoded, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.NewUpstreamClientError(p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	default:
		return nil, errors.NewUpstreamError(p.name, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
}

// Stream opens a streaming call and forwards deltas on the returned channel.
// The channel ends with a terminal chunk (Done or Err set) and is then closed;
// when the context is cancelled the channel may close without a terminal
// chunk, but the forwarding goroutine always exits.
func (p *HTTPProvider) Stream(ctx context.Context, call Call) (<-chan Chunk, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(call.Operation)+"/stream", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	p.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError(p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, errors.NewUpstreamClientError(p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, errors.NewUpstreamError(p.name, fmt.Errorf("status %d", resp.StatusCode))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Every send must yield to cancellation; an abandoned consumer
		// must never pin this goroutine.
		emit := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				emit(Chunk{Done: true})
				return
			}
			if !emit(Chunk{Delta: payload}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(Chunk{Err: errors.NewUpstreamError(p.name, err), Done: true})
			return
		}
		// Stream ended without an explicit terminator.
		emit(Chunk{Done: true})
	}()
	return out, nil
}

func (p *HTTPProvider) endpoint(operation string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/" + operation
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// Build constructs one provider per configured upstream.
func Build(cfgs map[string]config.ProviderConfig, log logger.Logger) map[string]Provider {
	out := make(map[string]Provider, len(cfgs))
	for name, cfg := range cfgs {
		out[name] = NewHTTPProvider(name, cfg, log)
	}
	return out
}
