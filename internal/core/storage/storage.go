// Package storage defines the uniform capability interface the sync engine
// uses against local filesystem, S3-compatible, and WebDAV backends, plus
// one concrete implementation per backend.
package storage

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cloudsync/enginecore/internal/core/model"
)

// Op and IO timeouts applied by every backend: a short timeout for
// metadata-only operations (stat, delete, list head) and a longer one for
// bulk read/write, matching the original engine's two-tier timeout policy.
const (
	OpTimeout = 60 * time.Second
	IOTimeout = 300 * time.Second
)

// FileInfo describes one entry yielded by List, keyed by its normalized
// path in the tree the scanner builds.
type FileInfo struct {
	Path         string
	Size         int64
	ModifiedTime int64 // unix seconds
	IsDir        bool
	Checksum     string // backend-native checksum/etag, if any; empty if unavailable
}

// FileMeta is the result of a Stat call: the same fields as FileInfo minus
// the path, since the caller already knows it.
type FileMeta struct {
	Size         int64
	ModifiedTime int64
	IsDir        bool
	Checksum     string
}

// Storage is the capability set exposed to the rest of the core. Every
// method call is a suspension point; backends must not block the caller
// with unbounded retries of their own — the engine's execution loop owns
// retry policy.
type Storage interface {
	// List recursively lists entries under prefix (root when empty),
	// returning a flat slice in no particular order.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	// Stat returns metadata for path, or (nil, nil) if path does not exist.
	Stat(ctx context.Context, path string) (*FileMeta, error)
	// Read returns the full contents of path.
	Read(ctx context.Context, path string) ([]byte, error)
	// ReadRange returns up to length bytes starting at offset; it may
	// return fewer bytes than requested if the file is shorter.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)
	// Write stores data at path, replacing any existing content.
	Write(ctx context.Context, path string, data []byte) error
	// WriteStream stores the content read from r at path. totalSize, when
	// known, lets the backend set a Content-Length or equivalent.
	WriteStream(ctx context.Context, path string, r io.Reader, totalSize int64) error
	// Delete removes path. Deleting a path that does not exist is not an
	// error.
	Delete(ctx context.Context, path string) error
	// CreateDir ensures path exists as a directory (or its backend
	// equivalent). Idempotent.
	CreateDir(ctx context.Context, path string) error
	// Name returns a human-readable identifier for logs.
	Name() string
}

// NormalizePath applies the path contract every backend enforces on entry:
// forward slashes, no leading slash. Backslashes are accepted for
// robustness and converted.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimPrefix(path, "/")
}

// withTimeout runs fn on its own goroutine bounded by d and returns
// ctx.Err() if the deadline elapses first. Backends whose underlying
// client calls don't accept a context (gowebdav, plain os calls) use this
// to still honor OpTimeout/IOTimeout.
func withTimeout(ctx context.Context, d time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// New constructs the Storage implementation named by cfg.Type.
func New(ctx context.Context, cfg model.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case model.BackendLocal:
		return NewLocal(cfg.RootPath)
	case model.BackendS3:
		return NewS3(ctx, cfg)
	case model.BackendWebDav:
		return NewWebDav(cfg)
	default:
		return nil, errUnknownBackend(cfg.Type)
	}
}

type errUnknownBackend model.BackendType

func (e errUnknownBackend) Error() string {
	return "storage: unknown backend type " + string(e)
}
