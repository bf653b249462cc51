// Package storage keeps small objects (import previews) on the local disk or
// in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Open when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// FileInfo describes a stored object.
type FileInfo struct {
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	ModTime     time.Time `json:"modTime"`
}

// Store is implemented by LocalStore and R2Store. Paths are slash-separated
// keys relative to the store root.
type Store interface {
	Save(ctx context.Context, path string, r io.Reader, contentType string) (*FileInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, *FileInfo, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	URL(path string) string
}
