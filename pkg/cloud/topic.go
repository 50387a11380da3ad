package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// Topics is the SNS topic service.
type Topics struct {
	sns *sns.Client
}

// Topics returns the topic service view.
func (c *Client) Topics() *Topics {
	return &Topics{sns: c.sns}
}

// CreateOrGetTopic relies on CreateTopic being idempotent for a name.
func (t *Topics) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	out, err := t.sns.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", classify("create topic "+name, err)
	}
	return aws.ToString(out.TopicArn), nil
}

func (t *Topics) Publish(ctx context.Context, topicID, text string) error {
	_, err := t.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicID),
		Message:  aws.String(text),
	})
	return classify("publish", err)
}

// Subscribe returns the subscription ARN. SNS returns the existing ARN for a
// repeated topic/endpoint pair.
func (t *Topics) Subscribe(ctx context.Context, topicID, protocol, targetID string) (string, error) {
	if protocol != backend.ProtocolQueue {
		return "", fmt.Errorf("%w: %s", backend.ErrUnsupportedProtocol, protocol)
	}
	out, err := t.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(topicID),
		Protocol:              aws.String(protocol),
		Endpoint:              aws.String(targetID),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", classify("subscribe", err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}
