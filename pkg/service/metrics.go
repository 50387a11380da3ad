package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksCreated counts ingestion outcomes.
	// Labels:
	//   - status: "created", "invalid", "persistence_failed", "fanout_failed"
	tasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_tasks_created_total",
		Help: "The total number of task creation requests by outcome",
	}, []string{"status"})

	// fanoutFailures counts failed deliveries per channel ("topic" or "queue").
	fanoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_fanout_failures_total",
		Help: "The total number of failed event deliveries",
	}, []string{"channel"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_uploads_total",
		Help: "The total number of image uploads by outcome",
	}, []string{"status"})

	uploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskhub_upload_bytes",
		Help:    "Size of stored image uploads",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)
