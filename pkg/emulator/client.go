// Package emulator provides Redis-backed stand-ins for the table, blob, topic
// and queue services. It lets taskhub run locally with nothing but Redis.
//
// Identifiers follow the shapes of the hosted services so code and fallbacks
// work the same against either backend:
//   - topic:     arn:aws:sns:<region>:<account>:<name>
//   - queue URL: <endpoint>/<account>/<name>
//   - queue ARN: arn:aws:sqs:<region>:<account>:<name>
//
// Key layout:
//   - emu:tables                    hash  table name -> key field
//   - emu:table:<name>              hash  item key -> item JSON
//   - emu:buckets                   set   bucket names
//   - emu:blob:<bucket>:<key>       hash  data, content_type
//   - emu:topics                    hash  topic name -> ARN
//   - emu:topic_arns                set   topic ARNs
//   - emu:topic:<arn>:subs          set   subscribed queue ARNs
//   - emu:queues                    hash  queue name -> URL
//   - emu:queue_urls                hash  queue URL -> ARN
//   - emu:queue:<arn>:messages      list  pending messages
//   - emu:queue:<arn>:processing    list  received, unacknowledged messages
//   - emu:queue:<arn>:senders       set   source ARNs the policy allows
//   - emu:queue:<arn>:policy        string raw policy document
package emulator

import (
	"context"
	"fmt"
	"strings"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/redis/go-redis/v9"
)

// Options shape the identifiers the emulator hands out.
type Options struct {
	Region    string
	AccountID string
	Endpoint  string
}

// DefaultOptions match the LocalStack defaults.
var DefaultOptions = Options{
	Region:    "us-east-1",
	AccountID: "000000000000",
	Endpoint:  "http://localhost:4566",
}

// Client manages the connection to Redis. The service views returned by
// Tables, Blobs, Topics and Queues share it.
type Client struct {
	rdb  *redis.Client
	opts Options
}

// NewClient creates a client connected to the Redis at addr ("host:port").
// Empty option fields take DefaultOptions values.
//
// Example:
//
//	client := emulator.NewClient("localhost:6379", emulator.Options{})
func NewClient(addr string, opts Options) *Client {
	if opts.Region == "" {
		opts.Region = DefaultOptions.Region
	}
	if opts.AccountID == "" {
		opts.AccountID = DefaultOptions.AccountID
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultOptions.Endpoint
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Client{rdb: rdb, opts: opts}
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Services exposes the emulator through the backend interfaces.
func (c *Client) Services() backend.Backend {
	return backend.Backend{
		Tables: c.Tables(),
		Blobs:  c.Blobs(),
		Topics: c.Topics(),
		Queues: c.Queues(),
	}
}

func (c *Client) topicArn(name string) string {
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", c.opts.Region, c.opts.AccountID, name)
}

func (c *Client) queueURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.opts.Endpoint, c.opts.AccountID, name)
}

func (c *Client) queueArn(name string) string {
	return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", c.opts.Region, c.opts.AccountID, name)
}

const (
	keyTables    = "emu:tables"
	keyBuckets   = "emu:buckets"
	keyTopics    = "emu:topics"
	keyTopicArns = "emu:topic_arns"
	keyQueues    = "emu:queues"
	keyQueueURLs = "emu:queue_urls"
)

func tableKey(name string) string { return "emu:table:" + name }
func blobKey(bucket, key string) string { return "emu:blob:" + bucket + ":" + key }
func subsKey(topicArn string) string { return "emu:topic:" + topicArn + ":subs" }
func messagesKey(queueArn string) string { return "emu:queue:" + queueArn + ":messages" }
func processingKey(queueArn string) string { return "emu:queue:" + queueArn + ":processing" }
func sendersKey(queueArn string) string { return "emu:queue:" + queueArn + ":senders" }
func policyKey(queueArn string) string { return "emu:queue:" + queueArn + ":policy" }
