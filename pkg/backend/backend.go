// Package backend declares the storage and messaging services taskhub depends
// on. Implementations live in pkg/emulator (Redis) and pkg/cloud (AWS); the
// in-memory pkg/backend/fake serves tests.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyExists is returned by create operations that lost a race or
	// found the resource present. Callers treat it as success.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNotFound is returned when an addressed resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnsupportedProtocol is returned by Subscribe for delivery protocols
	// the backend cannot serve.
	ErrUnsupportedProtocol = errors.New("unsupported subscription protocol")
)

// ProtocolQueue is the subscription protocol delivering topic messages to a queue.
const ProtocolQueue = "sqs"

// TableStore persists items in hash-keyed collections.
type TableStore interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name, keyField string) error
	// WaitUntilReady blocks until the collection accepts writes or timeout elapses.
	WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error
	// Put writes item under its key field, replacing any previous item.
	Put(ctx context.Context, collection string, item any) error
}

// BlobStore holds opaque objects in named containers.
type BlobStore interface {
	Exists(ctx context.Context, container string) (bool, error)
	CreateContainer(ctx context.Context, container string) error
	Put(ctx context.Context, container, key string, data []byte, contentType string) error
}

// TopicService is a publish/subscribe channel.
type TopicService interface {
	// CreateOrGetTopic returns the same identifier for the same name.
	CreateOrGetTopic(ctx context.Context, name string) (string, error)
	Publish(ctx context.Context, topicID, text string) error
	// Subscribe returns the subscription identifier. Subscribing the same
	// target twice returns the existing subscription.
	Subscribe(ctx context.Context, topicID, protocol, targetID string) (string, error)
}

// QueueService is a point-to-point queue.
type QueueService interface {
	// CreateOrGetQueue returns the queue address; the same name yields the same address.
	CreateOrGetQueue(ctx context.Context, name string) (string, error)
	// GetResourceID returns the queue's resource identifier, distinct from its address.
	GetResourceID(ctx context.Context, queueID string) (string, error)
	SetAccessPolicy(ctx context.Context, queueID, policy string) error
	Send(ctx context.Context, queueID, text string) error
}

// Message is a queue message handed to a consumer.
type Message struct {
	ID      string
	Body    string
	Receipt string
}

// QueueConsumer drains a queue. Received messages stay invisible to other
// consumers until acknowledged.
type QueueConsumer interface {
	Receive(ctx context.Context, queueID string, limit int, wait time.Duration) ([]Message, error)
	Ack(ctx context.Context, queueID, receipt string) error
}

// Backend bundles one implementation of every service.
type Backend struct {
	Tables TableStore
	Blobs  BlobStore
	Topics TopicService
	Queues QueueService
}
