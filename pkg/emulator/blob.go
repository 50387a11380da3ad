package emulator

import (
	"context"
	"fmt"

	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// Blobs stores objects as Redis hashes grouped by bucket.
type Blobs struct {
	c *Client
}

// Blobs returns the blob store view.
func (c *Client) Blobs() *Blobs {
	return &Blobs{c: c}
}

// Exists reports whether the bucket was created.
func (b *Blobs) Exists(ctx context.Context, container string) (bool, error) {
	return b.c.rdb.SIsMember(ctx, keyBuckets, container).Result()
}

// CreateContainer creates a bucket, or returns backend.ErrAlreadyExists.
func (b *Blobs) CreateContainer(ctx context.Context, container string) error {
	added, err := b.c.rdb.SAdd(ctx, keyBuckets, container).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return fmt.Errorf("bucket %s: %w", container, backend.ErrAlreadyExists)
	}
	return nil
}

// Put stores data under key. The bucket must exist.
func (b *Blobs) Put(ctx context.Context, container, key string, data []byte, contentType string) error {
	exists, err := b.Exists(ctx, container)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s: %w", container, backend.ErrNotFound)
	}
	return b.c.rdb.HSet(ctx, blobKey(container, key), "data", data, "content_type", contentType).Err()
}

// Get returns a stored object and its content type.
func (b *Blobs) Get(ctx context.Context, container, key string) ([]byte, string, error) {
	fields, err := b.c.rdb.HGetAll(ctx, blobKey(container, key)).Result()
	if err != nil {
		return nil, "", err
	}
	data, ok := fields["data"]
	if !ok {
		return nil, "", fmt.Errorf("object %s/%s: %w", container, key, backend.ErrNotFound)
	}
	return []byte(data), fields["content_type"], nil
}
