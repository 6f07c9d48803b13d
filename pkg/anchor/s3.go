package anchor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sigillum/core/pkg/auditlog"
)

// S3Publisher writes anchor records to an S3 bucket, one object per batch
// plus a rolling latest pointer.
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds the publication target.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix
}

// NewS3Publisher creates an S3-backed root publisher.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("anchor: load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	return &S3Publisher{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (p *S3Publisher) PublishRoot(ctx context.Context, b *auditlog.Batch) error {
	data, err := marshalRecord(b)
	if err != nil {
		return err
	}

	key := p.prefix + b.BatchID + ".json"

	// Idempotent by batch id: an existing record is the same record.
	if _, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return nil
	}

	for _, k := range []string{key, p.prefix + "latest.json"} {
		if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(k),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		}); err != nil {
			return fmt.Errorf("anchor: s3 put %s: %w", k, err)
		}
	}
	return nil
}
