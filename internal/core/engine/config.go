// Package engine orchestrates one end-to-end sync run: connect both
// storage backends, scan, compare, apply the incremental-skip filter,
// execute the resulting actions with a bounded worker pool, and persist
// the outcome.
package engine

import (
	"github.com/cloudsync/enginecore/internal/core/scanner"
)

// Config tunes one engine's execution policy. The zero value is not
// usable; build one with DefaultConfig and override individual fields.
type Config struct {
	// MaxConcurrentTransfers bounds the worker pool. Clamped to [1, 128].
	MaxConcurrentTransfers int
	// StreamThreshold is the size, in bytes, at or above which a Copy action
	// streams through WriteStream instead of buffering the whole file
	// via Read/Write.
	StreamThreshold int64
	// ChunkSize is the buffer size used when streaming.
	ChunkSize int64
	// MaxRetries is the number of retries attempted after the first
	// failure, before an action is recorded as failed.
	MaxRetries int
	// RetryBaseDelayMs is the base delay for exponential backoff between
	// retries: delay = RetryBaseDelayMs * 2^attempt.
	RetryBaseDelayMs int64
	// EnableResume toggles recording streamed-transfer progress in
	// transferstate. The engine does not read those rows back: an
	// interrupted streamed transfer starts over on the next run.
	EnableResume bool
	// AutoCreateDir, when true, attempts to create the destination root
	// once if an initial probe list fails with a not-found/conflict-like
	// error.
	AutoCreateDir bool
	// UseChecksum forces the comparator to always compute checksums
	// rather than relying on size+mtime shortcuts.
	UseChecksum bool
	// ScanConfig controls exclusion rules applied to both sides.
	ScanConfig scanner.Config
}

// DefaultConfig mirrors the original engine's defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTransfers: 4,
		StreamThreshold:        128 * 1024 * 1024,
		ChunkSize:              8 * 1024 * 1024,
		MaxRetries:             5,
		RetryBaseDelayMs:       2000,
		EnableResume:           true,
		AutoCreateDir:          true,
		UseChecksum:            false,
		ScanConfig:             scanner.DefaultConfig(),
	}
}

func (c Config) clamped() Config {
	if c.MaxConcurrentTransfers < 1 {
		c.MaxConcurrentTransfers = 1
	}
	if c.MaxConcurrentTransfers > 128 {
		c.MaxConcurrentTransfers = 128
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 8 * 1024 * 1024
	}
	return c
}
