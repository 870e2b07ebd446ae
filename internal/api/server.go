package api

import (
	"context"
	"net/http"
	"time"

	"ai-orchestrator/internal/breaker"
	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/database"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/models"
	"ai-orchestrator/internal/monitor"
	"ai-orchestrator/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP ingress: the suggestion endpoints plus health and
// metrics surfaces.
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	service  *orchestrator.Service
	redis    *database.RedisClient
	breakers *breaker.Manager
	monitor  *monitor.Monitor
	log      logger.Logger
}

func NewServer(cfg *config.Config, service *orchestrator.Service, redis *database.RedisClient, breakers *breaker.Manager, mon *monitor.Monitor, log logger.Logger) *Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		service:  service,
		redis:    redis,
		breakers: breakers,
		monitor:  mon,
		log:      log.WithFields(map[string]interface{}{"component": "api"}),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/suggestions", s.handleSuggestions)
		v1.POST("/suggestions/stream", s.handleSuggestionsStream)
		v1.GET("/performance", s.handlePerformance)
	}

	s.engine = engine
	return s
}

// Handler exposes the router for tests and for the HTTP server in main.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.engine,
		ReadTimeout:  config.GetDuration(s.cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(s.cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Info("http server listening", map[string]interface{}{"address": s.cfg.Server.Address})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request", map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
		})
	}
}

func correlationID(c *gin.Context) string {
	if id := c.GetHeader("X-Correlation-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// toModel converts the wire request into the internal descriptor.
func (r *suggestionRequest) toModel(c *gin.Context) *models.Request {
	return &models.Request{
		Context:          r.Context,
		Tone:             r.Tone,
		Preferences:      r.Preferences,
		ImageData:        r.ImageData,
		UserID:           r.UserID,
		CorrelationID:    correlationID(c),
		StrategyOverride: r.Strategy,
		CreatedAt:        time.Now(),
	}
}
