// Package storage is the object store side of library synchronization: a
// capability interface over a hierarchical, path-keyed blob store, its S3
// implementation, the key layout and zip archive streaming.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Entry is one immediate child of a listed prefix.
type Entry struct {
	Key          string
	IsPrefix     bool
	Size         int64
	LastModified time.Time
}

// SignedURL is a time-limited GET link.
type SignedURL struct {
	URL         string
	ExpiresAt   time.Time
	ContentType string
	FileName    string
}

// ObjectStore is everything the sync engine needs from the blob store.
//
// Transport failures are reported as common.ErrStoreUnavailable, missing
// objects as common.ErrorNotFound (see NotFoundError).
type ObjectStore interface {
	// Put overwrites silently when key exists.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete succeeds for missing keys.
	Delete(ctx context.Context, key string) error
	// DeletePrefix lists then deletes every object under prefix. It is not
	// atomic; retrying after a partial failure is safe.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	HasPrefix(ctx context.Context, prefix string) (bool, error)
	// ListTree returns the immediate children of prefix, markers excluded.
	ListTree(ctx context.Context, prefix string) ([]Entry, error)
	// ListAll returns every object under prefix, markers excluded.
	ListAll(ctx context.Context, prefix string) ([]ObjectInfo, error)
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (SignedURL, error)
	// ArchiveStream zips every object under prefix lazily. The stream can be
	// read once.
	ArchiveStream(ctx context.Context, prefix string) io.ReadCloser
}

// NotFoundError conveys that a specific key is missing from the store.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return common.ErrorNotFound
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, key, common.ErrStoreUnavailable, err)
}
