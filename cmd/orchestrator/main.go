// cmd/orchestrator/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"go.uber.org/zap"

	"ai-orchestrator/internal/api"
	"ai-orchestrator/internal/breaker"
	"ai-orchestrator/internal/cache"
	"ai-orchestrator/internal/common/aws"
	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/database"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/internal/monitor"
	"ai-orchestrator/internal/notification"
	"ai-orchestrator/internal/orchestrator"
	"ai-orchestrator/internal/providers"
	"ai-orchestrator/internal/quality"
	"ai-orchestrator/internal/strategy"
	"ai-orchestrator/internal/telemetry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting orchestrator...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, cfg.Server.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional, telemetry only) ---
	var telemetrySink *telemetry.Sink
	if cfg.Telemetry.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Warn("elasticsearch unavailable, telemetry disabled", zap.Error(err))
		} else {
			telemetrySink = telemetry.New(cfg.Telemetry, esClient, log)
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Init Notification Clients ---
	var notifier *notification.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		var sesClient notification.SESService
		var snsClient notification.SNSService

		if cfg.Notifications.Email.Enabled {
			client, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Warn("ses client init failed, email alerts disabled", zap.Error(err))
			} else {
				sesClient = client
			}
		}
		if cfg.Notifications.SMS.Enabled {
			client, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Warn("sns client init failed, sms alerts disabled", zap.Error(err))
			} else {
				snsClient = client
			}
		}
		notifier = notification.New(cfg.Notifications, sesClient, snsClient, log)
	}

	// --- Build Core Components ---
	upstreams := providers.Build(cfg.Providers, log)

	pipeline, err := quality.NewPipeline(cfg.Quality, nil, log)
	if err != nil {
		zapLog.Fatal("quality pipeline init failed", zap.Error(err))
	}

	breakers := breaker.NewManager(cfg.Breakers, cfg.Retry, log)
	mon := monitor.New(cfg.Monitor, log)

	var moderation orchestrator.ModerationFilter
	if p, ok := upstreams["moderation"]; ok {
		moderation = orchestrator.NewProviderModeration(p, breakers, "moderation")
	}

	service := orchestrator.NewService(orchestrator.Deps{
		Config:     cfg,
		Logger:     log,
		Selector:   strategy.NewSelector(cfg.Strategy, cfg.Tiers, log),
		Breakers:   breakers,
		Cache:      cache.New(redis, cfg.Cache, cfg.Tiers, log),
		Pipeline:   pipeline,
		Monitor:    mon,
		Providers:  upstreams,
		Moderation: moderation,
		Notifier:   notifier,
		Telemetry:  telemetrySink,
	})
	service.Start(ctx)

	zapLog.Info("All components initialized",
		zap.Int("providers", len(upstreams)),
		zap.Int("tiers", len(cfg.Tiers)),
	)

	// pprof on the default mux, loopback only
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof server failed", zap.Error(err))
		}
	}()

	server := api.NewServer(cfg, service, redis, breakers, mon, log)
	if err := server.Run(ctx); err != nil {
		zapLog.Fatal("http server failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped gracefully")
}
