// Package main is the entrypoint for the video threat detection server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsrek "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/idan5353/video-threat-detection/internal/alert"
	"github.com/idan5353/video-threat-detection/internal/analysis"
	"github.com/idan5353/video-threat-detection/internal/api"
	"github.com/idan5353/video-threat-detection/internal/api/handler"
	mw "github.com/idan5353/video-threat-detection/internal/api/middleware"
	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/config"
	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/pipeline"
	"github.com/idan5353/video-threat-detection/internal/realtime"
	"github.com/idan5353/video-threat-detection/internal/registry"
	"github.com/idan5353/video-threat-detection/internal/rekognition"
	"github.com/idan5353/video-threat-detection/internal/report"
	"github.com/idan5353/video-threat-detection/internal/store"
)

const (
	shutdownTimeout        = 30 * time.Second
	eventRequestsPerMinute = 600
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		slog.SetDefault(newLogger(slog.LevelInfo))
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.SlogLevel()))
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"region", cfg.AWS.Region,
		"realtime_transport", cfg.Realtime.Transport,
		"event_auth", cfg.EventAuth.TokenHash != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to the connection registry
	reg, err := registry.NewRedisRegistry(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis registry: %w", err)
	}
	defer reg.Close()

	if err := reg.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	pgStore := store.NewPostgresStore(pool)
	components, err := buildPipeline(cfg, awsCfg, pgStore, reg, m)
	if err != nil {
		return err
	}
	if components.hub != nil {
		defer components.hub.Close()
	}

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:            mw.NewAuth(cfg.EventAuth.TokenHash),
		EventRateLimit:  mw.NewRateLimit(reg, "events", eventRequestsPerMinute, m),
		SocketRateLimit: mw.NewRateLimit(reg, "ws", cfg.Realtime.ConnectRatePerMin, m),
		Metrics:         m,

		HealthHandler:     healthHandler(pgStore, reg),
		VideoEvent:        handler.NewVideoEventHandler(components.dispatcher),
		AnalyzeEvent:      handler.NewAnalyzeEventHandler(components.analyzer),
		CompletionEvent:   handler.NewCompletionEventHandler(components.router),
		ConnectHandler:    handler.NewConnectHandler(reg),
		DisconnectHandler: handler.NewDisconnectHandler(reg),
		GetRequest:        handler.NewGetRequestHandler(pgStore),
	}
	if components.hub != nil {
		deps.WebsocketHandler = handler.NewWebsocketHandler(components.hub)
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

type pipelineComponents struct {
	dispatcher *pipeline.Dispatcher
	analyzer   *pipeline.Analyzer
	router     *pipeline.CompletionRouter
	hub        *realtime.Hub
}

// buildPipeline wires the analysis backend, report store, alerting and
// realtime fanout into the three pipeline entry points.
func buildPipeline(cfg *config.Config, awsCfg aws.Config, st store.Store, reg registry.Registry, m *metrics.Metrics) (*pipelineComponents, error) {
	timeout := cfg.AWS.CallTimeout

	backend := rekognition.NewClient(awsrek.NewFromConfig(awsCfg), rekognition.Config{
		TopicARN:         cfg.AWS.SNSTopicARN,
		RoleARN:          cfg.AWS.RekognitionRoleARN,
		CallTimeout:      timeout,
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	})

	s3Client := s3.NewFromConfig(awsCfg)
	reports := report.NewS3Store(s3Client, cfg.AWS.ResultsBucket, timeout)
	sizes := report.NewObjectInspector(s3Client, timeout)

	publisher := alert.NewPublisher(sns.NewFromConfig(awsCfg), cfg.AWS.ThreatAlertTopic, timeout)
	emitter := alert.NewMetricEmitter(cloudwatch.NewFromConfig(awsCfg), timeout)

	c := &pipelineComponents{}
	var deliverer realtime.Deliverer
	switch cfg.Realtime.Transport {
	case config.TransportAPIGateway:
		deliverer = realtime.NewAPIGatewayDeliverer(realtime.NewManagementClient(awsCfg, cfg.Realtime.WebsocketEndpoint))
		slog.Info("realtime delivery via managed gateway", "endpoint", cfg.Realtime.WebsocketEndpoint)
	case config.TransportWebsocket:
		c.hub = realtime.NewHub(reg, m)
		deliverer = c.hub
		slog.Info("realtime delivery via in-process websocket hub")
	default:
		return nil, fmt.Errorf("unsupported realtime transport %q", cfg.Realtime.Transport)
	}
	fanout := realtime.NewFanout(reg, deliverer, cfg.Realtime.DeliveryTimeout, m).
		WithConcurrency(cfg.Realtime.FanoutConcurrency)

	c.dispatcher = pipeline.NewDispatcher(backend, st, alert.NewAnnouncer(publisher), cfg.Analysis.MinConfidence, m)
	c.analyzer = pipeline.NewAnalyzer(sizes, fanout)
	c.router = pipeline.NewCompletionRouter(pipeline.CompletionDeps{
		Fetcher:       backend,
		Classifier:    analysis.NewClassifier(cfg.Analysis.MinConfidence, cfg.Analysis.CrowdThreshold),
		Jobs:          st,
		Reports:       reports,
		Alerts:        publisher,
		ThreatMetrics: emitter,
		Fanout:        fanout,
		Metrics:       m,
	})
	return c, nil
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and registry connectivity.
func healthHandler(db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"registry": "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := redis.Ping(r.Context()); err != nil {
			checks["registry"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["registry"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
