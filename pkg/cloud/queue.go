package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// SQS caps on a single ReceiveMessage call.
const (
	maxReceiveBatch = 10
	maxReceiveWait  = 20 * time.Second
)

// Queues is the SQS queue service.
type Queues struct {
	sqs *sqs.Client
}

// Queues returns the queue service view.
func (c *Client) Queues() *Queues {
	return &Queues{sqs: c.sqs}
}

// CreateOrGetQueue returns the queue URL. CreateQueue with unchanged
// attributes is idempotent.
func (q *Queues) CreateOrGetQueue(ctx context.Context, name string) (string, error) {
	out, err := q.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return "", classify("create queue "+name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// GetResourceID reads the QueueArn attribute.
func (q *Queues) GetResourceID(ctx context.Context, queueID string) (string, error) {
	out, err := q.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueID),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", classify("get queue attributes", err)
	}
	arn, ok := out.Attributes[string(types.QueueAttributeNameQueueArn)]
	if !ok || arn == "" {
		return "", fmt.Errorf("queue %s has no %s attribute: %w", queueID, types.QueueAttributeNameQueueArn, backend.ErrNotFound)
	}
	return arn, nil
}

func (q *Queues) SetAccessPolicy(ctx context.Context, queueID, doc string) error {
	_, err := q.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(queueID),
		Attributes: map[string]string{string(types.QueueAttributeNamePolicy): doc},
	})
	return classify("set queue policy", err)
}

func (q *Queues) Send(ctx context.Context, queueID, text string) error {
	_, err := q.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueID),
		MessageBody: aws.String(text),
	})
	return classify("send message", err)
}

// Receive long-polls for up to limit messages. limit and wait are clamped to
// what SQS accepts.
func (q *Queues) Receive(ctx context.Context, queueID string, limit int, wait time.Duration) ([]backend.Message, error) {
	limit = min(max(limit, 1), maxReceiveBatch)
	wait = min(max(wait, 0), maxReceiveWait)

	out, err := q.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueID),
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, classify("receive messages", err)
	}
	msgs := make([]backend.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, backend.Message{
			ID:      aws.ToString(m.MessageId),
			Body:    aws.ToString(m.Body),
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Ack deletes a received message by its receipt handle.
func (q *Queues) Ack(ctx context.Context, queueID, receipt string) error {
	_, err := q.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueID),
		ReceiptHandle: aws.String(receipt),
	})
	return classify("delete message", err)
}
