// Package main implements the taskhub HTTP API server.
//
// API Endpoints:
//
//	GET  /health  - liveness plus the outcome of the last bootstrap
//	POST /tasks   - stores a task and emits its TASK_CREATED event
//	POST /upload  - stores an image (multipart "image" field or JSON {"base64": ...})
//	GET  /metrics - Prometheus metrics
//
// Request Format (POST /tasks):
//
//	{
//	  "title": "Buy milk",
//	  "description": "2 litres",
//	  "imageKey": "images/<id>.jpg"
//	}
//
// Response Format:
//
//	{"ok": true, "task": {"taskId": "...", "title": "Buy milk", ...}}
//
// Usage:
//
//	go run ./cmd/server
//
// Before listening, the server ensures its table, bucket, topic and queue
// exist. Bootstrap failures are logged and never stop startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/config"
	"github.com/guido-cesarano/taskhub/pkg/connect"
	"github.com/guido-cesarano/taskhub/pkg/infra"
	"github.com/guido-cesarano/taskhub/pkg/logger"
	"github.com/guido-cesarano/taskhub/pkg/service"
)

const shutdownTimeout = 10 * time.Second

// newApplication wires the services to the identifiers bootstrap produced.
func newApplication(cfg *config.Config, conn *connect.Conn, handles infra.Handles, report func() infra.Report) *application {
	pub := &service.Publisher{
		Topics:          conn.Topics,
		Queues:          conn.Queues,
		TopicID:         handles.TopicID,
		QueueID:         handles.QueueID,
		DirectQueueSend: cfg.Fanout.DirectQueueSend,
	}
	return &application{
		tasks: service.NewTaskService(conn.Tables, handles.Table, pub),
		uploads: service.NewUploadService(conn.Blobs, service.UploadConfig{
			Bucket:             handles.Bucket,
			Prefix:             cfg.Resources.ImagePrefix,
			Extension:          cfg.Resources.ImageExtension,
			DefaultContentType: cfg.Resources.DefaultContentType,
			PublicBase:         cfg.Backend.Endpoint,
		}),
		report:  report,
		apiKey:  cfg.Server.APIKey,
		maxBody: cfg.Server.MaxBodyBytes,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect.Open(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("driver", cfg.Backend.Driver).Msg("Failed to open backend")
	}
	defer conn.Close()

	boot := infra.NewBootstrapper(infra.FromConfig(cfg), conn.Backend,
		infra.WithReadyTimeout(cfg.Bootstrap.TableReadyTimeout),
		infra.WithLogger(logger.Component("bootstrap")),
	)
	report := boot.Run(ctx)
	if report.OK() {
		logger.Log.Info().Dur("duration", report.Duration).Msg("Infrastructure ready")
	} else {
		logger.Log.Warn().Int("failed", len(report.Failed())).Interface("steps", report.Summary()).Msg("Infrastructure incomplete, serving anyway")
	}

	sched := infra.NewScheduler(boot, report)
	if spec := cfg.Bootstrap.ReensureSchedule; spec != "" {
		if _, err := sched.Schedule(spec, cfg.Bootstrap.TableReadyTimeout+shutdownTimeout); err != nil {
			logger.Log.Fatal().Err(err).Str("spec", spec).Msg("Invalid re-bootstrap schedule")
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Server.APIKey == "" {
		logger.Log.Warn().Msg("API key not set. Authentication disabled.")
	} else {
		logger.Log.Info().Msg("API Authentication enabled.")
	}

	app := newApplication(cfg, conn, report.Handles, sched.Last)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logger.Log.Info().Msg("Server stopped")
}
