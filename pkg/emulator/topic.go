package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/tasks"
	"github.com/redis/go-redis/v9"
)

// fanoutScript delivers one notification to every subscribed queue whose
// policy lists the topic as an allowed sender, atomically.
//
// KEYS[1]: topic ARN set
// KEYS[2]: subscription set of the topic
// ARGV[1]: topic ARN
// ARGV[2]: encoded queue entry
//
// Returns -1 for an unknown topic, else the number of queues delivered to.
var fanoutScript = redis.NewScript(`
	local topic_arns = KEYS[1]
	local subs_key = KEYS[2]
	local topic_arn = ARGV[1]
	local entry = ARGV[2]

	if redis.call('SISMEMBER', topic_arns, topic_arn) == 0 then
		return -1
	end

	local delivered = 0
	for _, queue_arn in ipairs(redis.call('SMEMBERS', subs_key)) do
		local prefix = 'emu:queue:' .. queue_arn
		if redis.call('SISMEMBER', prefix .. ':senders', topic_arn) == 1 then
			redis.call('RPUSH', prefix .. ':messages', entry)
			delivered = delivered + 1
		end
	end

	return delivered
`)

// Topics implements publish/subscribe on Redis sets and lists.
type Topics struct {
	c *Client
}

// Topics returns the topic service view.
func (c *Client) Topics() *Topics {
	return &Topics{c: c}
}

// CreateOrGetTopic registers the topic if needed and returns its ARN.
func (t *Topics) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	arn := t.c.topicArn(name)
	pipe := t.c.rdb.TxPipeline()
	pipe.HSetNX(ctx, keyTopics, name, arn)
	pipe.SAdd(ctx, keyTopicArns, arn)
	get := pipe.HGet(ctx, keyTopics, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return get.Val(), nil
}

// Publish forwards text, wrapped in a notification, to every subscribed
// queue that authorises the topic. Queues without a matching policy
// silently receive nothing.
func (t *Topics) Publish(ctx context.Context, topicID, text string) error {
	note, err := json.Marshal(tasks.Notification{
		Type:      tasks.NotificationType,
		MessageID: uuid.New().String(),
		TopicArn:  topicID,
		Message:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	entry, err := encodeEntry(string(note))
	if err != nil {
		return err
	}

	n, err := fanoutScript.Run(ctx, t.c.rdb,
		[]string{keyTopicArns, subsKey(topicID)},
		topicID, entry,
	).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("topic %s: %w", topicID, backend.ErrNotFound)
	}
	return nil
}

// Subscribe attaches a queue to the topic. The subscription id is derived
// from the pair, so repeating the call returns the same id.
func (t *Topics) Subscribe(ctx context.Context, topicID, protocol, targetID string) (string, error) {
	if protocol != backend.ProtocolQueue {
		return "", fmt.Errorf("%w: %s", backend.ErrUnsupportedProtocol, protocol)
	}
	known, err := t.c.rdb.SIsMember(ctx, keyTopicArns, topicID).Result()
	if err != nil {
		return "", err
	}
	if !known {
		return "", fmt.Errorf("topic %s: %w", topicID, backend.ErrNotFound)
	}
	if err := t.c.rdb.SAdd(ctx, subsKey(topicID), targetID).Err(); err != nil {
		return "", err
	}
	return subscriptionID(topicID, targetID), nil
}

// Subscriptions lists the queue ARNs subscribed to a topic.
func (t *Topics) Subscriptions(ctx context.Context, topicID string) ([]string, error) {
	return t.c.rdb.SMembers(ctx, subsKey(topicID)).Result()
}

func subscriptionID(topicID, targetID string) string {
	return topicID + ":" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(topicID+"|"+targetID)).String()
}
