// Package cloud implements the backend services on AWS (or LocalStack) with
// DynamoDB tables, S3 buckets, SNS topics and SQS queues.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/config"
)

// Client holds one SDK client per service, all pointed at the same endpoint.
type Client struct {
	dynamo *dynamodb.Client
	s3     *s3.Client
	sns    *sns.Client
	sqs    *sqs.Client
	region string
}

// New loads the AWS configuration for cfg. A non-empty Endpoint overrides
// every service endpoint, which is how LocalStack is reached. Static
// credentials are used when both key fields are set; otherwise the default
// credential chain applies.
func New(ctx context.Context, cfg config.BackendConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newFromConfig(awsCfg, cfg.Endpoint), nil
}

func newFromConfig(awsCfg aws.Config, endpoint string) *Client {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return &Client{
		dynamo: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = base
		}),
		s3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = base
			// LocalStack serves buckets on paths, not subdomains.
			o.UsePathStyle = base != nil
		}),
		sns: sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			o.BaseEndpoint = base
		}),
		sqs: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = base
		}),
		region: awsCfg.Region,
	}
}

// Services exposes the client through the backend interfaces.
func (c *Client) Services() backend.Backend {
	return backend.Backend{
		Tables: c.Tables(),
		Blobs:  c.Blobs(),
		Topics: c.Topics(),
		Queues: c.Queues(),
	}
}
