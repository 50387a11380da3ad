package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// readyPollInterval is how often WaitUntilReady re-checks a table.
const readyPollInterval = 50 * time.Millisecond

// Tables stores hash-keyed items, one Redis hash per table.
type Tables struct {
	c *Client
}

// Tables returns the table store view.
func (c *Client) Tables() *Tables {
	return &Tables{c: c}
}

// ListCollections returns the names of every table.
func (t *Tables) ListCollections(ctx context.Context) ([]string, error) {
	return t.c.rdb.HKeys(ctx, keyTables).Result()
}

// CreateCollection registers a table keyed by keyField. It returns
// backend.ErrAlreadyExists when the table is already registered.
func (t *Tables) CreateCollection(ctx context.Context, name, keyField string) error {
	created, err := t.c.rdb.HSetNX(ctx, keyTables, name, keyField).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("table %s: %w", name, backend.ErrAlreadyExists)
	}
	return nil
}

// WaitUntilReady polls until the table is registered or timeout elapses.
func (t *Tables) WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error {
	b := retry.WithMaxDuration(timeout, retry.NewConstant(readyPollInterval))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := t.c.rdb.HExists(ctx, keyTables, name).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(fmt.Errorf("table %s: %w", name, backend.ErrNotFound))
		}
		return nil
	})
}

// Put writes item under the value of the table's key field, replacing any
// previous item with the same key.
func (t *Tables) Put(ctx context.Context, collection string, item any) error {
	keyField, err := t.c.rdb.HGet(ctx, keyTables, collection).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("table %s: %w", collection, backend.ErrNotFound)
	}
	if err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("item is not an object: %w", err)
	}
	key, ok := fields[keyField].(string)
	if !ok || key == "" {
		return fmt.Errorf("item has no string %q attribute", keyField)
	}

	return t.c.rdb.HSet(ctx, tableKey(collection), key, data).Err()
}

// Get returns the raw JSON of one item.
func (t *Tables) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	data, err := t.c.rdb.HGet(ctx, tableKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("item %s/%s: %w", collection, key, backend.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Count returns the number of items in a table.
func (t *Tables) Count(ctx context.Context, collection string) (int64, error) {
	return t.c.rdb.HLen(ctx, tableKey(collection)).Result()
}
