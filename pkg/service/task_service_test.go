package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend/fake"
	"github.com/guido-cesarano/taskhub/pkg/infra"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fb      *fake.Backend
	handles infra.Handles
	pub     *Publisher
	svc     *TaskService
}

// newFixture bootstraps a fake backend and wires a TaskService to it.
func newFixture(t *testing.T, opts ...TaskOption) *fixture {
	t.Helper()
	fb := fake.New()
	res := infra.Resources{
		Table: "Tasks", KeyField: "taskId", Bucket: "shopping-images",
		Topic: "task-events", Queue: "task-queue",
		Region: "us-east-1", AccountID: "000000000000", Endpoint: "http://localhost:4566",
	}
	report := infra.NewBootstrapper(res, fb.Services()).Run(context.Background())
	require.True(t, report.OK())

	be := fb.Services()
	pub := &Publisher{
		Topics:          be.Topics,
		Queues:          be.Queues,
		TopicID:         report.Handles.TopicID,
		QueueID:         report.Handles.QueueID,
		DirectQueueSend: true,
	}
	return &fixture{
		fb:      fb,
		handles: report.Handles,
		pub:     pub,
		svc:     NewTaskService(be.Tables, report.Handles.Table, pub, opts...),
	}
}

func decode(t *testing.T, body string) tasks.Envelope {
	t.Helper()
	var env tasks.Envelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return env
}

func TestCreateTaskEndToEnd(t *testing.T) {
	f := newFixture(t)

	task, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Buy milk"})
	require.NoError(t, err)

	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "", task.Description)
	assert.Nil(t, task.ImageKey)
	_, err = time.Parse(tasks.TimestampLayout, task.CreatedAt)
	assert.NoError(t, err)

	items := f.fb.Items("Tasks")
	require.Len(t, items, 1)
	assert.Contains(t, items, task.TaskID)

	published := f.fb.Published(f.handles.TopicID)
	require.Len(t, published, 1)
	sent := f.fb.Sent(f.handles.QueueID)
	require.Len(t, sent, 1)

	for _, body := range []string{published[0], sent[0]} {
		env := decode(t, body)
		assert.Equal(t, tasks.EventTaskCreated, env.Type)
		assert.Equal(t, task, env.Payload)
	}
}

func TestCreateTaskPersistsBeforeFanout(t *testing.T) {
	f := newFixture(t)
	before := len(f.fb.Order())

	_, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Order"})
	require.NoError(t, err)

	assert.Equal(t, []string{fake.OpPutItem, fake.OpPublish, fake.OpSend}, f.fb.Order()[before:])
}

func TestCreateTaskGeneratesUniqueIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	var last string
	for i := 0; i < 50; i++ {
		task, err := f.svc.CreateTask(ctx, tasks.Input{Title: fmt.Sprintf("task %d", i)})
		require.NoError(t, err)
		assert.False(t, seen[task.TaskID], "duplicate id %s", task.TaskID)
		seen[task.TaskID] = true
		assert.GreaterOrEqual(t, task.CreatedAt, last)
		last = task.CreatedAt
	}
	assert.Len(t, f.fb.Items("Tasks"), 50)
}

func TestCreateTaskTimestampsNeverGoBack(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	f := newFixture(t, WithClock(func() time.Time {
		t := times[i]
		i++
		return t
	}))

	var stamps []string
	for range times {
		task, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "tick"})
		require.NoError(t, err)
		stamps = append(stamps, task.CreatedAt)
	}

	assert.Equal(t, stamps[0], stamps[1])
	assert.Greater(t, stamps[2], stamps[1])
}

func TestCreateTaskCallerSuppliedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "images/abc.jpg"

	first, err := f.svc.CreateTask(ctx, tasks.Input{TaskID: "fixed", Title: "one", ImageKey: &key})
	require.NoError(t, err)
	assert.Equal(t, "fixed", first.TaskID)
	require.NotNil(t, first.ImageKey)
	assert.Equal(t, key, *first.ImageKey)

	// Same identity overwrites: last write wins.
	_, err = f.svc.CreateTask(ctx, tasks.Input{TaskID: "fixed", Title: "two"})
	require.NoError(t, err)

	items := f.fb.Items("Tasks")
	require.Len(t, items, 1)
	assert.Contains(t, string(items["fixed"]), `"title":"two"`)
}

func TestCreateTaskValidation(t *testing.T) {
	for _, title := range []string{"", "  "} {
		t.Run(fmt.Sprintf("title=%q", title), func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: title, Description: "x"})

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "title", verr.Field)

			assert.Equal(t, 0, f.fb.Calls(fake.OpPutItem))
			assert.Equal(t, 0, f.fb.Calls(fake.OpPublish))
			assert.Equal(t, 0, f.fb.Calls(fake.OpSend))
		})
	}
}

func TestCreateTaskPersistenceFailureSkipsFanout(t *testing.T) {
	f := newFixture(t)
	f.fb.FailOn(fake.OpPutItem, errors.New("table unavailable"))

	task, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Buy milk"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrFanout)
	assert.Contains(t, err.Error(), "table unavailable")
	assert.Equal(t, tasks.Task{}, task)
	assert.Equal(t, 0, f.fb.Calls(fake.OpPublish))
	assert.Equal(t, 0, f.fb.Calls(fake.OpSend))
}

func TestCreateTaskTopicFailureIsFailFast(t *testing.T) {
	f := newFixture(t)
	f.fb.FailOn(fake.OpPublish, errors.New("topic gone"))

	task, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Buy milk"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFanout)
	var ferr *FanoutError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ChannelTopic, ferr.Channel)
	assert.Equal(t, tasks.Task{}, task)

	// The record stays stored; the queue is never attempted.
	assert.Len(t, f.fb.Items("Tasks"), 1)
	assert.Contains(t, f.fb.Items("Tasks"), ferr.TaskID)
	assert.Equal(t, 0, f.fb.Calls(fake.OpSend))
}

func TestCreateTaskQueueFailure(t *testing.T) {
	f := newFixture(t)
	f.fb.FailOn(fake.OpSend, errors.New("queue full"))

	_, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Buy milk"})

	var ferr *FanoutError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ChannelQueue, ferr.Channel)
	assert.Len(t, f.fb.Published(f.handles.TopicID), 1)
}

func TestCreateTaskPublishOnly(t *testing.T) {
	f := newFixture(t)
	f.pub.DirectQueueSend = false

	_, err := f.svc.CreateTask(context.Background(), tasks.Input{Title: "Buy milk"})
	require.NoError(t, err)

	assert.Len(t, f.fb.Published(f.handles.TopicID), 1)
	assert.Equal(t, 0, f.fb.Calls(fake.OpSend))
}

type failingPublisher struct{ err error }

func (p failingPublisher) PublishCreated(context.Context, tasks.Task) error { return p.err }

func TestCreateTaskWrapsForeignPublisherErrors(t *testing.T) {
	fb := fake.New()
	be := fb.Services()
	require.NoError(t, be.Tables.CreateCollection(context.Background(), "Tasks", "taskId"))
	svc := NewTaskService(be.Tables, "Tasks", failingPublisher{err: errors.New("boom")},
		WithIDGenerator(func() string { return "id-1" }))

	_, err := svc.CreateTask(context.Background(), tasks.Input{Title: "x"})

	var ferr *FanoutError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "id-1", ferr.TaskID)
}

func TestCreateTaskMissingTable(t *testing.T) {
	fb := fake.New()
	be := fb.Services()
	svc := NewTaskService(be.Tables, "Tasks", &Publisher{Topics: be.Topics, Queues: be.Queues})

	_, err := svc.CreateTask(context.Background(), tasks.Input{Title: "x"})

	assert.ErrorIs(t, err, ErrPersistence)
}
