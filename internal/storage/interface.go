package storage

import (
	"context"
	"io"
	"time"
)

// PutOptions describe an object being stored.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is one listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStorage is where uploaded import sources are mirrored.
type ObjectStorage interface {
	// Put stores an object under key
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error

	// URL returns the URL for accessing an object
	URL(key string) string

	// List returns the objects whose keys start with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes objects; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// EnsureBucket creates the bucket when it is missing
	EnsureBucket(ctx context.Context) error
}
