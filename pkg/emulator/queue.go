package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/policy"
	"github.com/redis/go-redis/v9"
)

// entry is the stored form of a queue message.
type entry struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func encodeEntry(body string) (string, error) {
	data, err := json.Marshal(entry{ID: uuid.New().String(), Body: body})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Queues implements point-to-point queues on Redis lists.
//
// Queue Architecture, per queue ARN:
//   - messages: pending messages, consumed from the head
//   - processing: messages handed out by Receive and not yet acknowledged
//   - senders: source ARNs the access policy authorises
type Queues struct {
	c *Client
}

// Queues returns the queue service view.
func (c *Client) Queues() *Queues {
	return &Queues{c: c}
}

// CreateOrGetQueue registers the queue if needed and returns its URL.
func (q *Queues) CreateOrGetQueue(ctx context.Context, name string) (string, error) {
	url := q.c.queueURL(name)
	pipe := q.c.rdb.TxPipeline()
	pipe.HSetNX(ctx, keyQueues, name, url)
	pipe.HSetNX(ctx, keyQueueURLs, url, q.c.queueArn(name))
	get := pipe.HGet(ctx, keyQueues, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return get.Val(), nil
}

// GetResourceID returns the queue ARN for a queue URL.
func (q *Queues) GetResourceID(ctx context.Context, queueID string) (string, error) {
	arn, err := q.c.rdb.HGet(ctx, keyQueueURLs, queueID).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("queue %s: %w", queueID, backend.ErrNotFound)
	}
	return arn, err
}

// SetAccessPolicy stores the policy and replaces the set of senders allowed
// to deliver into the queue with the ones it grants.
func (q *Queues) SetAccessPolicy(ctx context.Context, queueID, doc string) error {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return err
	}
	parsed, err := policy.Parse(doc)
	if err != nil {
		return err
	}
	senders := parsed.AllowedSources(policy.ActionSendMessage, arn)

	pipe := q.c.rdb.TxPipeline()
	pipe.Set(ctx, policyKey(arn), doc, 0)
	pipe.Del(ctx, sendersKey(arn))
	if len(senders) > 0 {
		members := make([]interface{}, len(senders))
		for i, s := range senders {
			members[i] = s
		}
		pipe.SAdd(ctx, sendersKey(arn), members...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Policy returns the raw policy document of a queue, or "" if none is set.
func (q *Queues) Policy(ctx context.Context, queueID string) (string, error) {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return "", err
	}
	doc, err := q.c.rdb.Get(ctx, policyKey(arn)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return doc, err
}

// Send appends a message to the tail of the queue.
func (q *Queues) Send(ctx context.Context, queueID, text string) error {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return err
	}
	e, err := encodeEntry(text)
	if err != nil {
		return err
	}
	return q.c.rdb.RPush(ctx, messagesKey(arn), e).Err()
}

// Receive atomically moves up to limit messages to the processing list and
// returns them. It blocks up to wait for the first message and returns an
// empty slice when none arrives.
func (q *Queues) Receive(ctx context.Context, queueID string, limit int, wait time.Duration) ([]backend.Message, error) {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	var out []backend.Message
	for len(out) < limit {
		var raw string
		if len(out) == 0 && wait > 0 {
			raw, err = q.c.rdb.BLMove(ctx, messagesKey(arn), processingKey(arn), "LEFT", "RIGHT", wait).Result()
		} else {
			raw, err = q.c.rdb.LMove(ctx, messagesKey(arn), processingKey(arn), "LEFT", "RIGHT").Result()
		}
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, err
		}

		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// Drop what cannot be decoded instead of redelivering it forever.
			if err := q.c.rdb.LRem(ctx, processingKey(arn), 1, raw).Err(); err != nil {
				return out, fmt.Errorf("drop undecodable message: %w", err)
			}
			continue
		}
		out = append(out, backend.Message{ID: e.ID, Body: e.Body, Receipt: raw})
	}
	return out, nil
}

// Ack removes a received message from the processing list.
func (q *Queues) Ack(ctx context.Context, queueID, receipt string) error {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return err
	}
	return q.c.rdb.LRem(ctx, processingKey(arn), 1, receipt).Err()
}

// Peek returns up to limit pending messages without removing them.
func (q *Queues) Peek(ctx context.Context, queueID string, limit int64) ([]backend.Message, error) {
	arn, err := q.GetResourceID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	raws, err := q.c.rdb.LRange(ctx, messagesKey(arn), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	var out []backend.Message
	for _, raw := range raws {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, backend.Message{ID: e.ID, Body: e.Body, Receipt: raw})
	}
	return out, nil
}

// Depths returns pending and in-flight counts for every queue, keyed
// "<name>" and "<name>:processing".
func (q *Queues) Depths(ctx context.Context) (map[string]int64, error) {
	queues, err := q.c.rdb.HGetAll(ctx, keyQueues).Result()
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int64, 2*len(queues))
	for name, url := range queues {
		arn, err := q.c.rdb.HGet(ctx, keyQueueURLs, url).Result()
		if err != nil {
			continue
		}
		if n, err := q.c.rdb.LLen(ctx, messagesKey(arn)).Result(); err == nil {
			depths[name] = n
		}
		if n, err := q.c.rdb.LLen(ctx, processingKey(arn)).Result(); err == nil {
			depths[name+":processing"] = n
		}
	}
	return depths, nil
}
