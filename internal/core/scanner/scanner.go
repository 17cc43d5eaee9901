// Package scanner builds a flat file tree from a Storage backend, applying
// exclusion rules before the comparator ever sees the result.
package scanner

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// DefaultExcludePatterns mirrors the original engine's baked-in ignore
// list for common VCS/OS/editor noise.
var DefaultExcludePatterns = []string{
	".git/**",
	".svn/**",
	"node_modules/**",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.temp",
	"~*",
}

// Config controls what Scan includes in its result tree.
type Config struct {
	IncludeDirs       bool
	ExcludePatterns   []string
	MaxFileSize       int64 // 0 means unlimited
	IncludeExtensions []string
}

// DefaultConfig returns the baked-in defaults every job starts from.
func DefaultConfig() Config {
	return Config{
		ExcludePatterns: append([]string(nil), DefaultExcludePatterns...),
	}
}

// Scanner walks a Storage backend and yields a path-keyed file tree,
// checking for cancellation every 100 entries processed so a large tree
// never blocks a cancel request for long.
type Scanner struct {
	cfg       Config
	globs     []glob.Glob
	extLookup map[string]struct{}
	log       *zap.Logger
}

// New compiles cfg's exclude patterns once so Scan never recompiles them
// per call.
func New(cfg Config) (*Scanner, error) {
	globs := make([]glob.Glob, 0, len(cfg.ExcludePatterns))
	for _, pattern := range cfg.ExcludePatterns {
		g, err := glob.Compile(strings.ToLower(pattern), '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}

	var extLookup map[string]struct{}
	if len(cfg.IncludeExtensions) > 0 {
		extLookup = make(map[string]struct{}, len(cfg.IncludeExtensions))
		for _, ext := range cfg.IncludeExtensions {
			extLookup[strings.ToLower(ext)] = struct{}{}
		}
	}

	return &Scanner{
		cfg:       cfg,
		globs:     globs,
		extLookup: extLookup,
		log:       logger.Named("core.scanner"),
	}, nil
}

func (s *Scanner) shouldExclude(info storage.FileInfo) bool {
	lowered := strings.ToLower(info.Path)
	for _, g := range s.globs {
		if g.Match(lowered) {
			return true
		}
	}

	if s.cfg.MaxFileSize > 0 && info.Size > s.cfg.MaxFileSize {
		return true
	}

	if s.extLookup != nil {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(info.Path), "."))
		if _, ok := s.extLookup[ext]; !ok {
			return true
		}
	}

	return false
}

// Scan lists prefix on backend and returns a path-keyed tree of the files
// that survive exclusion. cancelled, when non-nil, is polled every 100
// processed entries.
func (s *Scanner) Scan(ctx context.Context, backend storage.Storage, prefix string, cancelled *atomic.Bool) (map[string]storage.FileInfo, error) {
	if cancelled != nil && cancelled.Load() {
		return nil, context.Canceled
	}

	s.log.Info("scanning storage", zap.String("backend", backend.Name()), zap.String("prefix", prefix))

	entries, err := backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if cancelled != nil && cancelled.Load() {
		return nil, context.Canceled
	}

	tree := make(map[string]storage.FileInfo, len(entries))
	var excluded, dirs int

	for i, entry := range entries {
		if i%100 == 0 && cancelled != nil && cancelled.Load() {
			return nil, context.Canceled
		}

		if entry.IsDir {
			if !s.cfg.IncludeDirs {
				dirs++
				continue
			}
		} else if s.shouldExclude(entry) {
			excluded++
			continue
		}

		tree[entry.Path] = entry
	}

	s.log.Info("scan complete",
		zap.Int("files", len(tree)),
		zap.Int("dirs_skipped", dirs),
		zap.Int("excluded", excluded),
	)

	return tree, nil
}
