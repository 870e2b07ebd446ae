package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// suggestionRequest is the wire shape of a suggestion call. ImageData is
// base64 in JSON per encoding/json convention.
type suggestionRequest struct {
	Context     string            `json:"context" binding:"required"`
	Tone        string            `json:"tone"`
	Preferences map[string]string `json:"preferences"`
	ImageData   []byte            `json:"imageData"`
	UserID      string            `json:"userId"`
	Strategy    string            `json:"strategy"`
}

func (s *Server) handleSuggestions(c *gin.Context) {
	var body suggestionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp := s.service.Process(c.Request.Context(), body.toModel(c))

	status := http.StatusOK
	if !resp.Success && resp.Metadata.RetryAfterSec > 0 {
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", fmt.Sprintf("%d", resp.Metadata.RetryAfterSec))
	}
	c.JSON(status, resp)
}

// handleSuggestionsStream proxies generation deltas as server-sent events.
func (s *Server) handleSuggestionsStream(c *gin.Context) {
	var body suggestionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	chunks, err := s.service.Stream(c.Request.Context(), body.toModel(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			return false
		}
		if chunk.Err != nil {
			c.SSEvent("error", chunk.Err.Error())
			return false
		}
		if chunk.Done {
			c.SSEvent("done", "[DONE]")
			return false
		}
		c.SSEvent("delta", chunk.Delta)
		return true
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	redisOK := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisOK = false
	}

	status := http.StatusOK
	state := "healthy"
	if !redisOK {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   state,
		"redis":    redisOK,
		"breakers": s.breakers.States(),
		"alerts":   len(s.monitor.Alerts()),
	})
}

// handlePerformance exposes the monitor's per-tier view for operators.
func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tiers":      s.monitor.Report(),
		"throughput": s.monitor.Throughput(),
		"alerts":     s.monitor.Alerts(),
	})
}
