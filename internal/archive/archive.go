// Package archive stores raw ingress payloads so failed or disputed
// classifications can be replayed later. Archival is best-effort; an
// archive failure never blocks the pipeline.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/billfeed/internal/domain"
)

// Archiver persists a raw event and returns its storage URI.
type Archiver interface {
	Archive(ctx context.Context, event domain.RawEvent) (string, error)
	Close() error
}

// GCSArchiver writes events as JSON objects to a GCS bucket, keyed by
// source type, day and event id.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver creates an archiver. With no options it uses
// Application Default Credentials.
func NewGCSArchiver(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

// Archive implements the Archiver interface.
func (a *GCSArchiver) Archive(ctx context.Context, event domain.RawEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	object := objectName(event)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write event %s: %w", event.EventID, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize event %s: %w", event.EventID, err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

// Close releases the underlying client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

func objectName(event domain.RawEvent) string {
	return fmt.Sprintf("events/%s/%s/%s.json",
		event.SourceType,
		event.ReceivedAt.UTC().Format("2006-01-02"),
		event.EventID,
	)
}

// Noop discards events. Used when no bucket is configured and in tests.
type Noop struct{}

func (Noop) Archive(ctx context.Context, event domain.RawEvent) (string, error) { return "", nil }
func (Noop) Close() error                                                       { return nil }
