package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/backend/fake"
	"github.com/guido-cesarano/taskhub/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResources() Resources {
	return Resources{
		Table:     "Tasks",
		KeyField:  "taskId",
		Bucket:    "shopping-images",
		Topic:     "task-events",
		Queue:     "task-queue",
		Region:    "us-east-1",
		AccountID: "000000000000",
		Endpoint:  "http://localhost:4566",
	}
}

func TestBootstrapEmptyInfrastructure(t *testing.T) {
	fb := fake.New()
	boot := NewBootstrapper(testResources(), fb.Services())

	report := boot.Run(context.Background())
	require.True(t, report.OK(), "failed steps: %v", report.Failed())

	for _, kind := range Kinds {
		step, ok := report.Step(kind)
		require.True(t, ok)
		assert.NotEqual(t, ActionFailed, step.Action, kind)
	}
	table, _ := report.Step(KindTable)
	assert.Equal(t, ActionCreated, table.Action)
	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionCreated, bucket.Action)

	h := report.Handles
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:task-events", h.TopicID)
	assert.Equal(t, "http://localhost:4566/000000000000/task-queue", h.QueueID)
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:task-queue", h.QueueResourceID)
	assert.NotEmpty(t, report.SubscriptionID)

	assert.Equal(t, []string{h.QueueResourceID}, fb.Subscriptions(h.TopicID))

	doc, err := policy.Parse(fb.Policy(h.QueueID))
	require.NoError(t, err)
	assert.True(t, doc.Allows(policy.ActionSendMessage, h.QueueResourceID, h.TopicID))
	require.Len(t, doc.Statement, 1)
	src, ok := doc.Statement[0].SourceArn()
	require.True(t, ok)
	assert.Equal(t, h.TopicID, src)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	fb := fake.New()
	boot := NewBootstrapper(testResources(), fb.Services())
	ctx := context.Background()

	first := boot.Run(ctx)
	require.True(t, first.OK())
	second := boot.Run(ctx)
	require.True(t, second.OK())

	// The second run observes everything and creates nothing.
	assert.Equal(t, 1, fb.Calls(fake.OpCreateCollection))
	assert.Equal(t, 1, fb.Calls(fake.OpCreateContainer))
	assert.Equal(t, 1, fb.Calls(fake.OpWaitUntilReady))

	table, _ := second.Step(KindTable)
	assert.Equal(t, ActionExisting, table.Action)
	bucket, _ := second.Step(KindBucket)
	assert.Equal(t, ActionExisting, bucket.Action)

	assert.Equal(t, first.Handles, second.Handles)
	assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
	assert.Len(t, fb.Subscriptions(first.Handles.TopicID), 1)
}

func TestBootstrapTableFailureIsIsolated(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpListCollections, errors.New("access denied"))
	boot := NewBootstrapper(testResources(), fb.Services())

	report := boot.Run(context.Background())

	require.False(t, report.OK())
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, KindTable, failed[0].Kind)
	assert.Contains(t, failed[0].Error(), "access denied")

	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionCreated, bucket.Action)
	queue, _ := report.Step(KindQueue)
	assert.True(t, queue.OK())
	assert.Equal(t, 0, fb.Calls(fake.OpCreateCollection))
}

func TestBootstrapTopicFailureFailsQueueWiring(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpCreateTopic, errors.New("throttled"))
	res := testResources()
	boot := NewBootstrapper(res, fb.Services())

	report := boot.Run(context.Background())

	topic, _ := report.Step(KindTopic)
	assert.False(t, topic.OK())
	queue, _ := report.Step(KindQueue)
	assert.ErrorIs(t, queue.Err, ErrTopicUnavailable)

	// The queue itself was created; only the wiring was skipped.
	assert.Equal(t, 1, fb.Calls(fake.OpCreateQueue))
	assert.Equal(t, 0, fb.Calls(fake.OpSetAccessPolicy))
	assert.Equal(t, 0, fb.Calls(fake.OpSubscribe))

	// Fallback topic id lets publishes fail later against the missing topic.
	assert.Equal(t, res.FallbackHandles().TopicID, report.Handles.TopicID)
	table, _ := report.Step(KindTable)
	assert.True(t, table.OK())
}

func TestBootstrapPolicyFailureSkipsSubscribe(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpSetAccessPolicy, errors.New("invalid policy"))
	boot := NewBootstrapper(testResources(), fb.Services())

	report := boot.Run(context.Background())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, KindQueue, failed[0].Kind)
	assert.Equal(t, 0, fb.Calls(fake.OpSubscribe))
}

func TestBootstrapBucketLookupErrorStillCreates(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpContainerExists, errors.New("403"))
	boot := NewBootstrapper(testResources(), fb.Services())

	report := boot.Run(context.Background())

	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionCreated, bucket.Action)
	assert.Equal(t, 1, fb.Calls(fake.OpCreateContainer))
}

// staleTables lists no collections, as a replica lagging a concurrent create would.
type staleTables struct{ backend.TableStore }

func (staleTables) ListCollections(context.Context) ([]string, error) { return nil, nil }

// staleBlobs reports every bucket missing.
type staleBlobs struct{ backend.BlobStore }

func (staleBlobs) Exists(context.Context, string) (bool, error) { return false, nil }

func TestBootstrapTableCreateRace(t *testing.T) {
	fb := fake.New()
	res := testResources()
	ctx := context.Background()
	// Another instance created the table after our list call.
	require.NoError(t, fb.Services().Tables.CreateCollection(ctx, res.Table, res.KeyField))

	be := fb.Services()
	be.Tables = staleTables{be.Tables}
	report := NewBootstrapper(res, be).Run(ctx)

	table, _ := report.Step(KindTable)
	require.NoError(t, table.Err)
	assert.Equal(t, ActionExisting, table.Action)
	assert.Equal(t, 2, fb.Calls(fake.OpCreateCollection))
	assert.Equal(t, 1, fb.Calls(fake.OpWaitUntilReady))
}

func TestBootstrapBucketCreateRace(t *testing.T) {
	fb := fake.New()
	res := testResources()
	ctx := context.Background()
	require.NoError(t, fb.Services().Blobs.CreateContainer(ctx, res.Bucket))

	be := fb.Services()
	be.Blobs = staleBlobs{be.Blobs}
	report := NewBootstrapper(res, be).Run(ctx)

	require.True(t, report.OK(), "failed steps: %v", report.Failed())
	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionExisting, bucket.Action)
	assert.Equal(t, 2, fb.Calls(fake.OpCreateContainer))
}

func TestBootstrapUsesResourceDescriptor(t *testing.T) {
	res := testResources()
	boot := NewBootstrapper(res, fake.New().Services())

	for _, e := range []Ensurer{boot.table, boot.bucket, boot.topic, boot.queue} {
		assert.Equal(t, res.Name(e.Kind()), e.Name(), e.Kind())
	}
	queue, ok := boot.queue.(*QueueEnsurer)
	require.True(t, ok)
	assert.Equal(t, res.Subscription(), queue.Link)
}

func TestQueueEnsurerFollowsRelationship(t *testing.T) {
	fb := fake.New()
	res := testResources()
	boot := NewBootstrapper(res, fb.Services())
	queue := boot.queue.(*QueueEnsurer)
	queue.Link.Action = "sqs:GetQueueAttributes"

	report := boot.Run(context.Background())
	require.True(t, report.OK(), "failed steps: %v", report.Failed())
	h := report.Handles
	doc, err := policy.Parse(fb.Policy(h.QueueID))
	require.NoError(t, err)
	assert.True(t, doc.Allows("sqs:GetQueueAttributes", h.QueueResourceID, h.TopicID))
	assert.False(t, doc.Allows(policy.ActionSendMessage, h.QueueResourceID, h.TopicID))

	queue.Link.Protocol = "email"
	report = boot.Run(context.Background())
	step, _ := report.Step(KindQueue)
	assert.ErrorIs(t, step.Err, backend.ErrUnsupportedProtocol)
}

func TestResourcesSubscription(t *testing.T) {
	res := testResources()
	link := res.Subscription()
	assert.Equal(t, Relationship{
		Topic:    "task-events",
		Queue:    "task-queue",
		Protocol: backend.ProtocolQueue,
		Action:   policy.ActionSendMessage,
	}, link)
	assert.Equal(t, "shopping-images", res.Name(KindBucket))
	assert.Empty(t, res.Name(Kind("cache")))
}

func TestBootstrapBucketOwnedElsewhereFails(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpContainerExists, errors.New("forbidden"))
	fb.FailOn(fake.OpCreateContainer, errors.New("create bucket: BucketAlreadyExists"))
	report := NewBootstrapper(testResources(), fb.Services()).Run(context.Background())

	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionFailed, bucket.Action)
	require.Error(t, bucket.Err)
	assert.Contains(t, bucket.Err.Error(), "forbidden")
	assert.Contains(t, bucket.Err.Error(), "BucketAlreadyExists")
}

type panickingEnsurer struct{}

func (panickingEnsurer) Kind() Kind   { return KindBucket }
func (panickingEnsurer) Name() string { return "boom" }
func (panickingEnsurer) Ensure(context.Context, *State) (Action, error) {
	panic("backend client is nil")
}

func TestBootstrapRecoversPanics(t *testing.T) {
	fb := fake.New()
	boot := NewBootstrapper(testResources(), fb.Services())
	boot.bucket = panickingEnsurer{}

	report := boot.Run(context.Background())

	bucket, _ := report.Step(KindBucket)
	assert.Equal(t, ActionFailed, bucket.Action)
	assert.Contains(t, bucket.Err.Error(), "backend client is nil")
	table, _ := report.Step(KindTable)
	assert.True(t, table.OK())
}

func TestReportSummary(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpCreateContainer, errors.New("quota"))
	boot := NewBootstrapper(testResources(), fb.Services())

	summary := boot.Run(context.Background()).Summary()

	assert.Equal(t, "created", summary["table"])
	assert.Contains(t, summary["bucket"], "failed")
	assert.Equal(t, "ensured", summary["topic"])
	assert.Equal(t, "ensured", summary["queue"])
}

func TestReportStatusHidesErrors(t *testing.T) {
	fb := fake.New()
	fb.FailOn(fake.OpCreateContainer, errors.New("AccessDenied: arn:aws:iam::123:role/x"))
	report := NewBootstrapper(testResources(), fb.Services()).Run(context.Background())

	status := report.Status()
	assert.Equal(t, "failed", status["bucket"])
	assert.Equal(t, "created", status["table"])
	assert.Len(t, status, len(Kinds))
	assert.Contains(t, report.Summary()["bucket"], "AccessDenied")
}

func TestWithReadyTimeout(t *testing.T) {
	boot := NewBootstrapper(testResources(), fake.New().Services(), WithReadyTimeout(time.Second))
	table, ok := boot.table.(*TableEnsurer)
	require.True(t, ok)
	assert.Equal(t, time.Second, table.ReadyTimeout)
}

func TestSchedulerReruns(t *testing.T) {
	fb := fake.New()
	boot := NewBootstrapper(testResources(), fb.Services())
	initial := boot.Run(context.Background())

	s := NewScheduler(boot, initial)
	_, err := s.Schedule("@every 1s", 5*time.Second)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	time.Sleep(1500 * time.Millisecond)

	assert.GreaterOrEqual(t, fb.Calls(fake.OpListCollections), 2)
	assert.True(t, s.Last().OK())
	assert.True(t, s.Last().StartedAt.After(initial.StartedAt))
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(NewBootstrapper(testResources(), fake.New().Services()), Report{})
	_, err := s.Schedule("not a spec", time.Second)
	assert.Error(t, err)
}
