package repositories

import (
	"context"
	"time"
)

// StoredObject identifies an uploaded image.
type StoredObject struct {
	URL string
	Key string
}

// ObjectStorage defines data access methods for the durable image store.
// Upload failures are non-fatal to the pipeline; callers fall back to inline
// delivery.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, fileName, contentType string) (*StoredObject, error)
	SignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
