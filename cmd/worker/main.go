// Package main implements the taskhub worker process.
// The worker drains the task queue, decodes TASK_CREATED events and tracks
// metrics.
//
// Features:
//   - Long-polling consumer with acknowledgement after handling
//   - Unwraps events forwarded through the topic
//   - Prometheus metrics exposed on :8080/metrics
//   - Queue depth gauge on the Redis backend
//
// Usage:
//
//	go run ./cmd/worker
//
// The worker reads the same configuration as the server and only consumes.
// It never creates infrastructure.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/guido-cesarano/taskhub/pkg/config"
	"github.com/guido-cesarano/taskhub/pkg/connect"
	"github.com/guido-cesarano/taskhub/pkg/infra"
	"github.com/guido-cesarano/taskhub/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsAddr = ":8080"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Server.LogLevel)
	log := logger.Component("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open backend")
	}
	defer conn.Close()

	queueID, err := conn.Queues.CreateOrGetQueue(ctx, cfg.Resources.Queue)
	if err != nil {
		queueID = infra.FromConfig(cfg).FallbackHandles().QueueID
		log.Warn().Err(err).Str("queue", queueID).Msg("Queue lookup failed, using derived URL")
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info().Str("addr", metricsAddr).Msg("Metrics server listening")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	if conn.Depths != nil {
		go collectQueueMetrics(ctx, conn.Depths)
	}

	log.Info().Str("queue", queueID).Msg("Worker started. Waiting for events...")
	NewConsumer(conn.Consumer, queueID, logEvent(log), log).Run(ctx)
	log.Info().Msg("Worker stopped")
}
