package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/emulator"
	"github.com/guido-cesarano/taskhub/pkg/infra"
	"github.com/guido-cesarano/taskhub/pkg/service"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
	"github.com/redis/go-redis/v9"
)

var resources = infra.Resources{
	Table: "Tasks", KeyField: "taskId", Bucket: "shopping-images",
	Topic: "task-events", Queue: "task-queue",
	Region: "us-east-1", AccountID: "000000000000", Endpoint: "http://localhost:4566",
}

// setupIntegrationRedis connects to the local Redis instance.
// Requires docker-compose up -d to be running.
func setupIntegrationRedis(t *testing.T) *emulator.Client {
	// Check if Redis is reachable
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	defer rdb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not reachable at localhost:6379 (%v)", err)
	}

	// Clear emulator state for a clean run
	keys, _ := rdb.Keys(ctx, "emu:*").Result()
	if len(keys) > 0 {
		rdb.Del(ctx, keys...)
	}

	client := emulator.NewClient("localhost:6379", emulator.Options{})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegrationFlow(t *testing.T) {
	client := setupIntegrationRedis(t)
	ctx := context.Background()

	// 1. Bootstrap twice; the second run must find everything in place
	boot := infra.NewBootstrapper(resources, client.Services())
	first := boot.Run(ctx)
	if !first.OK() {
		t.Fatalf("Bootstrap failed: %v", first.Failed())
	}
	second := boot.Run(ctx)
	if !second.OK() || second.Handles != first.Handles {
		t.Fatalf("Second bootstrap diverged: %+v vs %+v", second.Handles, first.Handles)
	}
	h := first.Handles

	// 2. Create a task
	pub := &service.Publisher{
		Topics: client.Topics(), Queues: client.Queues(),
		TopicID: h.TopicID, QueueID: h.QueueID, DirectQueueSend: true,
	}
	svc := service.NewTaskService(client.Tables(), h.Table, pub)
	task, err := svc.CreateTask(ctx, tasks.Input{Title: "integration"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// 3. The record is stored
	if _, err := client.Tables().Get(ctx, h.Table, task.TaskID); err != nil {
		t.Fatalf("Stored task not found: %v", err)
	}

	// 4. The queue holds the direct copy and the forwarded copy
	msgs, err := client.Queues().Receive(ctx, h.QueueID, 10, time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	seen := map[tasks.Source]bool{}
	for _, m := range msgs {
		env, src, err := tasks.DecodeEnvelope(m.Body)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if env.Payload.TaskID != task.TaskID {
			t.Errorf("Expected task %s, got %s", task.TaskID, env.Payload.TaskID)
		}
		seen[src] = true

		// 5. Ack
		if err := client.Queues().Ack(ctx, h.QueueID, m.Receipt); err != nil {
			t.Fatalf("Ack failed: %v", err)
		}
	}
	if !seen[tasks.SourceDirect] || !seen[tasks.SourceTopic] {
		t.Errorf("Expected one direct and one forwarded copy, got %v", seen)
	}

	// Verify queues are empty
	depths, _ := client.Queues().Depths(ctx)
	if depths["task-queue"] != 0 || depths["task-queue:processing"] != 0 {
		t.Errorf("Expected empty queue, got %v", depths)
	}
}
