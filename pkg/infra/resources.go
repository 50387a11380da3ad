// Package infra declares the infrastructure taskhub needs and creates it
// idempotently at startup.
//
// Five resources are involved: a table, a bucket, a topic, a queue and the
// topic→queue subscription with the queue policy authorising the topic to
// send. Bootstrap never fails the process; it returns a Report describing
// each step.
package infra

import (
	"fmt"
	"strings"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/config"
	"github.com/guido-cesarano/taskhub/pkg/policy"
)

// Kind is one of the resource kinds bootstrap ensures.
type Kind string

const (
	KindTable  Kind = "table"
	KindBucket Kind = "bucket"
	KindTopic  Kind = "topic"
	KindQueue  Kind = "queue"
)

// Kinds lists every kind in report order.
var Kinds = []Kind{KindTable, KindBucket, KindTopic, KindQueue}

// Resources is the static descriptor of the infrastructure.
type Resources struct {
	Table    string
	KeyField string
	Bucket   string
	Topic    string
	Queue    string

	// Region, AccountID and Endpoint only feed FallbackHandles.
	Region    string
	AccountID string
	Endpoint  string
}

// Relationship is the required wiring between the topic and the queue.
type Relationship struct {
	Topic    string
	Queue    string
	Protocol string
	Action   string
}

// FromConfig builds the descriptor from loaded configuration.
func FromConfig(cfg *config.Config) Resources {
	return Resources{
		Table:     cfg.Resources.Table,
		KeyField:  cfg.Resources.KeyField,
		Bucket:    cfg.Resources.Bucket,
		Topic:     cfg.Resources.Topic,
		Queue:     cfg.Resources.Queue,
		Region:    cfg.Backend.Region,
		AccountID: cfg.Resources.AccountID,
		Endpoint:  cfg.Backend.Endpoint,
	}
}

// Subscription describes the topic→queue relationship.
func (r Resources) Subscription() Relationship {
	return Relationship{
		Topic:    r.Topic,
		Queue:    r.Queue,
		Protocol: backend.ProtocolQueue,
		Action:   policy.ActionSendMessage,
	}
}

// Name returns the logical name of the resource of the given kind.
func (r Resources) Name(k Kind) string {
	switch k {
	case KindTable:
		return r.Table
	case KindBucket:
		return r.Bucket
	case KindTopic:
		return r.Topic
	case KindQueue:
		return r.Queue
	}
	return ""
}

// Handles are the identifiers the workflows address after bootstrap.
type Handles struct {
	Table           string `json:"table"`
	Bucket          string `json:"bucket"`
	TopicID         string `json:"topicId"`
	QueueID         string `json:"queueId"`
	QueueResourceID string `json:"queueResourceId"`
}

// FallbackHandles derives identifiers from names alone, in the shape the
// backends hand out. They stand in for steps that failed so that later
// operations fail against missing infrastructure instead of empty ids.
func (r Resources) FallbackHandles() Handles {
	return Handles{
		Table:           r.Table,
		Bucket:          r.Bucket,
		TopicID:         fmt.Sprintf("arn:aws:sns:%s:%s:%s", r.Region, r.AccountID, r.Topic),
		QueueID:         fmt.Sprintf("%s/%s/%s", strings.TrimRight(r.Endpoint, "/"), r.AccountID, r.Queue),
		QueueResourceID: fmt.Sprintf("arn:aws:sqs:%s:%s:%s", r.Region, r.AccountID, r.Queue),
	}
}
