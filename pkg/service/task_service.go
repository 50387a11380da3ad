// Package service implements the task ingestion and image upload workflows
// on top of the backend interfaces.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
)

// EventPublisher emits the creation event of a stored task.
type EventPublisher interface {
	PublishCreated(ctx context.Context, task tasks.Task) error
}

// TaskService runs the ingestion workflow: validate, assign identity,
// persist, fan out.
type TaskService struct {
	store     backend.TableStore
	table     string
	publisher EventPublisher
	newID     func() string
	clock     *monotonicClock
}

// TaskOption customizes a TaskService.
type TaskOption func(*TaskService)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(f func() string) TaskOption {
	return func(s *TaskService) { s.newID = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TaskOption {
	return func(s *TaskService) { s.clock.now = now }
}

// NewTaskService returns a TaskService writing to table.
func NewTaskService(store backend.TableStore, table string, publisher EventPublisher, opts ...TaskOption) *TaskService {
	s := &TaskService{
		store:     store,
		table:     table,
		publisher: publisher,
		newID:     func() string { return uuid.New().String() },
		clock:     &monotonicClock{now: time.Now},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask stores a new task and emits its creation event.
//
// Persistence happens before fan-out. If the put fails no event is sent and a
// *PersistenceError is returned. If the put succeeds but fan-out fails, the
// record stays stored and a *FanoutError is returned without the task.
func (s *TaskService) CreateTask(ctx context.Context, in tasks.Input) (tasks.Task, error) {
	if err := in.Validate(); err != nil {
		tasksCreated.WithLabelValues("invalid").Inc()
		return tasks.Task{}, &ValidationError{Field: "title", Reason: "is required"}
	}

	id := strings.TrimSpace(in.TaskID)
	if id == "" {
		id = s.newID()
	}
	task := tasks.NewTask(id, in, s.clock.Now())

	if err := s.store.Put(ctx, s.table, task); err != nil {
		tasksCreated.WithLabelValues("persistence_failed").Inc()
		return tasks.Task{}, &PersistenceError{Op: "put task", Err: err}
	}

	if err := s.publisher.PublishCreated(ctx, task); err != nil {
		tasksCreated.WithLabelValues("fanout_failed").Inc()
		if !errors.Is(err, ErrFanout) {
			err = &FanoutError{Channel: "unknown", TaskID: task.TaskID, Err: err}
		}
		return tasks.Task{}, err
	}

	tasksCreated.WithLabelValues("created").Inc()
	return task, nil
}

// monotonicClock never returns a time before one it already returned, so
// creation timestamps are non-decreasing within a process even if the wall
// clock steps back.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}
