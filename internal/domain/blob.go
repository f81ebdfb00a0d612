package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in archive storage. Paths are
// slash-separated keys relative to the configured bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads archive objects. PutMultipart is for payloads large
// enough that a single-shot upload would buffer too much; partSize of zero
// lets the implementation pick.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves archived objects and enumerates them by key prefix.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from storage. Implementations must be
// idempotent: deleting a missing object is not an error.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver snapshots resolved question records to cold storage.
type Archiver interface {
	ArchiveResolved(ctx context.Context, before time.Time) (int64, error)
}
