//go:build gcp

package anchor

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/sigillum/core/pkg/auditlog"
)

// GCSPublisher writes anchor records to a Cloud Storage bucket.
type GCSPublisher struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds the publication target.
type GCSConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSPublisher creates a GCS-backed root publisher using ADC.
func NewGCSPublisher(ctx context.Context, cfg GCSConfig) (*GCSPublisher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: create GCS client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (p *GCSPublisher) PublishRoot(ctx context.Context, b *auditlog.Batch) error {
	data, err := marshalRecord(b)
	if err != nil {
		return err
	}

	obj := p.client.Bucket(p.bucket).Object(p.prefix + b.BatchID + ".json")
	if _, err := obj.Attrs(ctx); err == nil {
		return nil
	}

	for _, name := range []string{p.prefix + b.BatchID + ".json", p.prefix + "latest.json"} {
		w := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
		w.ContentType = "application/json"
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("anchor: gcs write %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("anchor: gcs close %s: %w", name, err)
		}
	}
	return nil
}
