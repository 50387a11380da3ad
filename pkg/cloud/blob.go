package cloud

import (
	"bytes"
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// Blobs is the S3 blob store.
type Blobs struct {
	s3     *s3.Client
	region string
}

// Blobs returns the blob store view.
func (c *Client) Blobs() *Blobs {
	return &Blobs{s3: c.s3, region: c.region}
}

// Exists checks the bucket with HeadBucket. A missing bucket is (false, nil);
// any other failure is returned so the caller can decide.
func (b *Blobs) Exists(ctx context.Context, container string) (bool, error) {
	_, err := b.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return true, nil
	}
	if err = classify("head bucket "+container, err); errors.Is(err, backend.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CreateContainer creates the bucket in the client's region.
func (b *Blobs) CreateContainer(ctx context.Context, container string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(container)}
	// us-east-1 rejects an explicit location constraint.
	if b.region != "" && b.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.s3.CreateBucket(ctx, in)
	return classify("create bucket "+container, err)
}

// Put uploads data as a single object.
func (b *Blobs) Put(ctx context.Context, container, key string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := b.s3.PutObject(ctx, in)
	return classify("put object "+key, err)
}
