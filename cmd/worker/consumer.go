package main

import (
	"context"
	"errors"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/connect"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// eventsConsumed counts handled messages.
	// Labels:
	//   - source: "direct", "topic" or "invalid"
	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_events_consumed_total",
		Help: "The total number of consumed queue messages",
	}, []string{"source"})

	// eventLatency tracks the time between task creation and consumption.
	eventLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskhub_event_latency_seconds",
		Help:    "Time between task creation and event consumption",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// queueDepth tracks pending and in-flight messages per queue.
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskhub_queue_depth",
		Help: "Number of messages in each queue",
	}, []string{"queue"})
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, env tasks.Envelope, src tasks.Source) error

// Consumer drains the task queue. Every task reaches the queue once directly
// and once through the topic when both channels are live, so handlers must
// be idempotent per task id.
type Consumer struct {
	queue   backend.QueueConsumer
	queueID string
	handle  Handler
	log     zerolog.Logger

	batch int
	wait  time.Duration
}

// NewConsumer returns a consumer reading queueID in batches of up to 10.
func NewConsumer(queue backend.QueueConsumer, queueID string, handle Handler, log zerolog.Logger) *Consumer {
	return &Consumer{
		queue:   queue,
		queueID: queueID,
		handle:  handle,
		log:     log,
		batch:   10,
		wait:    5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.Poll(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Msg("Receive failed")
			// Back off so a dead backend does not spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if n > 0 {
			c.log.Debug().Int("count", n).Msg("Batch handled")
		}
	}
}

// Poll receives and handles one batch and returns how many messages it
// acknowledged. Undecodable messages are acknowledged and dropped; messages
// whose handler fails stay unacknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	msgs, err := c.queue.Receive(ctx, c.queueID, c.batch, c.wait)
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, m := range msgs {
		env, src, err := tasks.DecodeEnvelope(m.Body)
		if err != nil {
			c.log.Warn().Err(err).Str("message_id", m.ID).Msg("Dropping undecodable message")
			eventsConsumed.WithLabelValues("invalid").Inc()
		} else {
			if created, perr := time.Parse(tasks.TimestampLayout, env.Payload.CreatedAt); perr == nil {
				eventLatency.WithLabelValues(string(src)).Observe(time.Since(created).Seconds())
			}
			if herr := c.handle(ctx, env, src); herr != nil {
				c.log.Error().Err(herr).Str("task_id", env.Payload.TaskID).Msg("Handler failed")
				continue
			}
			eventsConsumed.WithLabelValues(string(src)).Inc()
		}

		if err := c.queue.Ack(ctx, c.queueID, m.Receipt); err != nil {
			return acked, err
		}
		acked++
	}
	return acked, nil
}

// logEvent is the default handler.
func logEvent(log zerolog.Logger) Handler {
	return func(_ context.Context, env tasks.Envelope, src tasks.Source) error {
		log.Info().
			Str("type", env.Type).
			Str("task_id", env.Payload.TaskID).
			Str("title", env.Payload.Title).
			Str("source", string(src)).
			Msg("Task event received")
		return nil
	}
}

// collectQueueMetrics periodically reads queue depths into the gauge.
func collectQueueMetrics(ctx context.Context, depths connect.DepthReader) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d, err := depths.Depths(ctx)
			if err != nil {
				continue
			}
			for queue, depth := range d {
				queueDepth.WithLabelValues(queue).Set(float64(depth))
			}
		}
	}
}
