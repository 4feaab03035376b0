// internal/core/ports/storage.go
package ports

import (
	"context"
	"io"
	"time"
)

// ObjectStorage stores export files and uploaded imports.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
