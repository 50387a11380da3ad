// Package fake provides in-memory backends that count every call and can be
// told to fail specific operations.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// Operation names accepted by Calls and FailOn.
const (
	OpListCollections  = "tables.list"
	OpCreateCollection = "tables.create"
	OpWaitUntilReady   = "tables.wait"
	OpPutItem          = "tables.put"
	OpContainerExists  = "blobs.exists"
	OpCreateContainer  = "blobs.create"
	OpPutObject        = "blobs.put"
	OpCreateTopic      = "topics.create"
	OpPublish          = "topics.publish"
	OpSubscribe        = "topics.subscribe"
	OpCreateQueue      = "queues.create"
	OpGetResourceID    = "queues.resource_id"
	OpSetAccessPolicy  = "queues.policy"
	OpSend             = "queues.send"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Backend is an in-memory implementation of every backend service.
type Backend struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	order []string

	collections map[string]string
	items       map[string]map[string]json.RawMessage

	containers map[string]bool
	objects    map[string]Object

	topics        map[string]string
	published     map[string][]string
	subscriptions map[string]map[string]string

	queues    map[string]string
	queueArns map[string]string
	policies  map[string]string
	sent      map[string][]string
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		calls:         make(map[string]int),
		fail:          make(map[string]error),
		collections:   make(map[string]string),
		items:         make(map[string]map[string]json.RawMessage),
		containers:    make(map[string]bool),
		objects:       make(map[string]Object),
		topics:        make(map[string]string),
		published:     make(map[string][]string),
		subscriptions: make(map[string]map[string]string),
		queues:        make(map[string]string),
		queueArns:     make(map[string]string),
		policies:      make(map[string]string),
		sent:          make(map[string][]string),
	}
}

// Services exposes the fake through the backend interfaces.
func (b *Backend) Services() backend.Backend {
	return backend.Backend{
		Tables: (*Tables)(b),
		Blobs:  (*Blobs)(b),
		Topics: (*Topics)(b),
		Queues: (*Queues)(b),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (b *Backend) FailOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, op)
		return
	}
	b.fail[op] = err
}

// Calls reports how many times op was invoked, failed calls included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Order returns the operations in invocation order.
func (b *Backend) Order() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// record counts the call and returns the injected error, if any. Callers hold mu.
func (b *Backend) record(op string) error {
	b.calls[op]++
	b.order = append(b.order, op)
	return b.fail[op]
}

// Items returns the raw JSON of every item in a collection, keyed by hash key.
func (b *Backend) Items(collection string) map[string]json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]json.RawMessage, len(b.items[collection]))
	for k, v := range b.items[collection] {
		out[k] = v
	}
	return out
}

// Object returns a stored blob.
func (b *Backend) Object(container, key string) (Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[container+"/"+key]
	return obj, ok
}

// Published returns every message published to a topic.
func (b *Backend) Published(topicID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published[topicID]...)
}

// Sent returns every message sent directly to a queue.
func (b *Backend) Sent(queueID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent[queueID]...)
}

// Policy returns the access policy last applied to a queue.
func (b *Backend) Policy(queueID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policies[queueID]
}

// Subscriptions returns the targets subscribed to a topic.
func (b *Backend) Subscriptions(topicID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var targets []string
	for target := range b.subscriptions[topicID] {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Tables is the TableStore view of Backend.
type Tables Backend

func (t *Tables) ListCollections(ctx context.Context) ([]string, error) {
	b := (*Backend)(t)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpListCollections); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.collections))
	for name := range b.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (t *Tables) CreateCollection(ctx context.Context, name, keyField string) error {
	b := (*Backend)(t)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpCreateCollection); err != nil {
		return err
	}
	if _, ok := b.collections[name]; ok {
		return backend.ErrAlreadyExists
	}
	b.collections[name] = keyField
	b.items[name] = make(map[string]json.RawMessage)
	return nil
}

func (t *Tables) WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error {
	b := (*Backend)(t)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpWaitUntilReady); err != nil {
		return err
	}
	if _, ok := b.collections[name]; !ok {
		return fmt.Errorf("collection %s: %w", name, backend.ErrNotFound)
	}
	return nil
}

func (t *Tables) Put(ctx context.Context, collection string, item any) error {
	b := (*Backend)(t)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpPutItem); err != nil {
		return err
	}
	keyField, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, backend.ErrNotFound)
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	key, ok := fields[keyField].(string)
	if !ok || key == "" {
		return fmt.Errorf("item has no %s key", keyField)
	}
	b.items[collection][key] = data
	return nil
}

// Blobs is the BlobStore view of Backend.
type Blobs Backend

func (s *Blobs) Exists(ctx context.Context, container string) (bool, error) {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpContainerExists); err != nil {
		return false, err
	}
	return b.containers[container], nil
}

func (s *Blobs) CreateContainer(ctx context.Context, container string) error {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpCreateContainer); err != nil {
		return err
	}
	if b.containers[container] {
		return backend.ErrAlreadyExists
	}
	b.containers[container] = true
	return nil
}

func (s *Blobs) Put(ctx context.Context, container, key string, data []byte, contentType string) error {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpPutObject); err != nil {
		return err
	}
	if !b.containers[container] {
		return fmt.Errorf("container %s: %w", container, backend.ErrNotFound)
	}
	b.objects[container+"/"+key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// Topics is the TopicService view of Backend.
type Topics Backend

func (s *Topics) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpCreateTopic); err != nil {
		return "", err
	}
	if id, ok := b.topics[name]; ok {
		return id, nil
	}
	id := "arn:aws:sns:us-east-1:000000000000:" + name
	b.topics[name] = id
	return id, nil
}

func (s *Topics) Publish(ctx context.Context, topicID, text string) error {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpPublish); err != nil {
		return err
	}
	if !hasValue(b.topics, topicID) {
		return fmt.Errorf("topic %s: %w", topicID, backend.ErrNotFound)
	}
	b.published[topicID] = append(b.published[topicID], text)
	return nil
}

func (s *Topics) Subscribe(ctx context.Context, topicID, protocol, targetID string) (string, error) {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpSubscribe); err != nil {
		return "", err
	}
	if protocol != backend.ProtocolQueue {
		return "", fmt.Errorf("%w: %s", backend.ErrUnsupportedProtocol, protocol)
	}
	if !hasValue(b.topics, topicID) {
		return "", fmt.Errorf("topic %s: %w", topicID, backend.ErrNotFound)
	}
	subs := b.subscriptions[topicID]
	if subs == nil {
		subs = make(map[string]string)
		b.subscriptions[topicID] = subs
	}
	if id, ok := subs[targetID]; ok {
		return id, nil
	}
	id := fmt.Sprintf("%s:sub-%d", topicID, len(subs)+1)
	subs[targetID] = id
	return id, nil
}

// Queues is the QueueService view of Backend.
type Queues Backend

func (s *Queues) CreateOrGetQueue(ctx context.Context, name string) (string, error) {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpCreateQueue); err != nil {
		return "", err
	}
	if url, ok := b.queues[name]; ok {
		return url, nil
	}
	url := "http://localhost:4566/000000000000/" + name
	b.queues[name] = url
	b.queueArns[url] = "arn:aws:sqs:us-east-1:000000000000:" + name
	return url, nil
}

func (s *Queues) GetResourceID(ctx context.Context, queueID string) (string, error) {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpGetResourceID); err != nil {
		return "", err
	}
	arn, ok := b.queueArns[queueID]
	if !ok {
		return "", fmt.Errorf("queue %s: %w", queueID, backend.ErrNotFound)
	}
	return arn, nil
}

func (s *Queues) SetAccessPolicy(ctx context.Context, queueID, policy string) error {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpSetAccessPolicy); err != nil {
		return err
	}
	if _, ok := b.queueArns[queueID]; !ok {
		return fmt.Errorf("queue %s: %w", queueID, backend.ErrNotFound)
	}
	b.policies[queueID] = policy
	return nil
}

func (s *Queues) Send(ctx context.Context, queueID, text string) error {
	b := (*Backend)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(OpSend); err != nil {
		return err
	}
	if _, ok := b.queueArns[queueID]; !ok {
		return fmt.Errorf("queue %s: %w", queueID, backend.ErrNotFound)
	}
	b.sent[queueID] = append(b.sent[queueID], text)
	return nil
}

// CountPrefix sums the calls of every operation starting with prefix, such as "tables.".
func (b *Backend) CountPrefix(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for op, c := range b.calls {
		if strings.HasPrefix(op, prefix) {
			n += c
		}
	}
	return n
}

func hasValue(m map[string]string, v string) bool {
	for _, x := range m {
		if x == v {
			return true
		}
	}
	return false
}
