package service

import (
	"context"
	"fmt"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
)

// Publisher emits TASK_CREATED events to the topic and to the queue.
//
// Delivery is fail-fast: the topic publish comes first and a failure there
// returns without attempting the queue. Nothing is retried or compensated.
//
// With DirectQueueSend enabled, a consumer of the queue receives each event
// twice once the topic subscription is live: once sent directly and once
// forwarded by the topic.
type Publisher struct {
	Topics          backend.TopicService
	Queues          backend.QueueService
	TopicID         string
	QueueID         string
	DirectQueueSend bool
}

// PublishCreated sends the creation event for task.
func (p *Publisher) PublishCreated(ctx context.Context, task tasks.Task) error {
	body, err := tasks.NewCreatedEnvelope(task).Encode()
	if err != nil {
		return &FanoutError{Channel: ChannelTopic, TaskID: task.TaskID, Err: fmt.Errorf("encode envelope: %w", err)}
	}

	if err := p.Topics.Publish(ctx, p.TopicID, body); err != nil {
		fanoutFailures.WithLabelValues(ChannelTopic).Inc()
		return &FanoutError{Channel: ChannelTopic, TaskID: task.TaskID, Err: err}
	}
	if !p.DirectQueueSend {
		return nil
	}
	if err := p.Queues.Send(ctx, p.QueueID, body); err != nil {
		fanoutFailures.WithLabelValues(ChannelQueue).Inc()
		return &FanoutError{Channel: ChannelQueue, TaskID: task.TaskID, Err: err}
	}
	return nil
}
