package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from storage. Used by retention pruning.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver writes batches of marketplace events to cold storage. It returns
// the object path the batch was written to.
type Archiver interface {
	ArchiveEvents(ctx context.Context, events []Event) (string, error)
}
