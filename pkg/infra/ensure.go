package infra

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/policy"
)

// Action records what an ensure step did to its resource.
type Action string

const (
	// ActionCreated means the step observed the resource missing and created it.
	ActionCreated Action = "created"
	// ActionExisting means the resource was already there.
	ActionExisting Action = "existing"
	// ActionEnsured is reported by create-or-get steps that cannot tell the two apart.
	ActionEnsured Action = "ensured"
	// ActionFailed marks a step that returned an error.
	ActionFailed Action = "failed"
)

// State carries identifiers between ensure steps of one bootstrap run.
type State struct {
	mu              sync.Mutex
	topicID         string
	queueID         string
	queueResourceID string
	subscriptionID  string
}

func (s *State) setTopic(id string) {
	s.mu.Lock()
	s.topicID = id
	s.mu.Unlock()
}

// TopicID returns the topic identifier captured so far.
func (s *State) TopicID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topicID
}

func (s *State) setQueue(url, arn string) {
	s.mu.Lock()
	s.queueID, s.queueResourceID = url, arn
	s.mu.Unlock()
}

func (s *State) setSubscription(id string) {
	s.mu.Lock()
	s.subscriptionID = id
	s.mu.Unlock()
}

// Ensurer makes one resource exist. Implementations must be idempotent.
type Ensurer interface {
	Kind() Kind
	Name() string
	Ensure(ctx context.Context, st *State) (Action, error)
}

// TableEnsurer creates the tasks table when ListCollections does not report it.
type TableEnsurer struct {
	Store        backend.TableStore
	Table        string
	KeyField     string
	ReadyTimeout time.Duration
}

func (e *TableEnsurer) Kind() Kind   { return KindTable }
func (e *TableEnsurer) Name() string { return e.Table }

func (e *TableEnsurer) Ensure(ctx context.Context, _ *State) (Action, error) {
	names, err := e.Store.ListCollections(ctx)
	if err != nil {
		return ActionFailed, fmt.Errorf("list tables: %w", err)
	}
	if slices.Contains(names, e.Table) {
		return ActionExisting, nil
	}

	action := ActionCreated
	if err := e.Store.CreateCollection(ctx, e.Table, e.KeyField); err != nil {
		if !errors.Is(err, backend.ErrAlreadyExists) {
			return ActionFailed, fmt.Errorf("create table: %w", err)
		}
		// Another instance won the race; it may still be creating.
		action = ActionExisting
	}
	if err := e.Store.WaitUntilReady(ctx, e.Table, e.ReadyTimeout); err != nil {
		return ActionFailed, fmt.Errorf("wait for table: %w", err)
	}
	return action, nil
}

// BucketEnsurer creates the image bucket when the existence check does not find it.
type BucketEnsurer struct {
	Store  backend.BlobStore
	Bucket string
}

func (e *BucketEnsurer) Kind() Kind   { return KindBucket }
func (e *BucketEnsurer) Name() string { return e.Bucket }

func (e *BucketEnsurer) Ensure(ctx context.Context, _ *State) (Action, error) {
	exists, lookupErr := e.Store.Exists(ctx, e.Bucket)
	if lookupErr == nil && exists {
		return ActionExisting, nil
	}
	// A failed lookup falls through to create; the create result decides.
	if err := e.Store.CreateContainer(ctx, e.Bucket); err != nil {
		if errors.Is(err, backend.ErrAlreadyExists) {
			return ActionExisting, nil
		}
		if lookupErr != nil {
			err = errors.Join(fmt.Errorf("check bucket: %w", lookupErr), err)
		}
		return ActionFailed, fmt.Errorf("create bucket: %w", err)
	}
	return ActionCreated, nil
}

// TopicEnsurer creates or looks up the event topic.
type TopicEnsurer struct {
	Topics backend.TopicService
	Topic  string
}

func (e *TopicEnsurer) Kind() Kind   { return KindTopic }
func (e *TopicEnsurer) Name() string { return e.Topic }

func (e *TopicEnsurer) Ensure(ctx context.Context, st *State) (Action, error) {
	id, err := e.Topics.CreateOrGetTopic(ctx, e.Topic)
	if err != nil {
		return ActionFailed, fmt.Errorf("create topic: %w", err)
	}
	st.setTopic(id)
	return ActionEnsured, nil
}

// QueueEnsurer creates the queue, grants the topic send permission on it and
// subscribes it to the topic. The chain is one unit: any failure fails the
// step and later sub-steps are not attempted. Link names the queue and
// carries the subscription protocol and the action the policy grants.
type QueueEnsurer struct {
	Queues backend.QueueService
	Topics backend.TopicService
	Link   Relationship
}

func (e *QueueEnsurer) Kind() Kind   { return KindQueue }
func (e *QueueEnsurer) Name() string { return e.Link.Queue }

func (e *QueueEnsurer) Ensure(ctx context.Context, st *State) (Action, error) {
	url, err := e.Queues.CreateOrGetQueue(ctx, e.Link.Queue)
	if err != nil {
		return ActionFailed, fmt.Errorf("create queue: %w", err)
	}
	arn, err := e.Queues.GetResourceID(ctx, url)
	if err != nil {
		return ActionFailed, fmt.Errorf("get queue arn: %w", err)
	}
	st.setQueue(url, arn)

	topicID := st.TopicID()
	if topicID == "" {
		return ActionFailed, fmt.Errorf("subscribe queue to %s: %w", e.Link.Topic, ErrTopicUnavailable)
	}

	doc := policy.Grant(arn, topicID, e.Link.Action)
	if err := e.Queues.SetAccessPolicy(ctx, url, doc.String()); err != nil {
		return ActionFailed, fmt.Errorf("set queue policy: %w", err)
	}
	subID, err := e.Topics.Subscribe(ctx, topicID, e.Link.Protocol, arn)
	if err != nil {
		return ActionFailed, fmt.Errorf("subscribe queue: %w", err)
	}
	st.setSubscription(subID)
	return ActionEnsured, nil
}
