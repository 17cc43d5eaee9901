// Package filecache persists a job's scanned file tree to disk so a
// subsequent run can skip the remote List call entirely when the storage
// config hasn't changed and the cache is still within its TTL.
package filecache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Side identifies which half of a job a cache entry belongs to.
type Side string

const (
	SideSource Side = "source"
	SideDest   Side = "dest"
)

// entry is the on-disk JSON document for one <jobID>_<side>.cache file.
type entry struct {
	Files      map[string]storage.FileInfo `json:"files"`
	CachedAt   int64                       `json:"cachedAt"`
	ConfigHash string                      `json:"configHash"`
}

// Result is what Load returns on a hit: the cached tree plus when it was
// captured, so callers can report cache age in diffs.
type Result struct {
	Files    map[string]storage.FileInfo
	CachedAt int64
}

// Cache manages the on-disk <jobID>_<side>.cache files under one directory.
type Cache struct {
	dir        string
	ttlSeconds int64
	log        *zap.Logger
}

// New opens (creating if necessary) a Cache rooted at dir with no
// expiration; chain WithTTL to bound entry lifetime.
func New(dir string) *Cache {
	_ = os.MkdirAll(dir, 0o755)
	return &Cache{dir: dir, log: logger.Named("core.filecache")}
}

// WithTTL returns a copy of c with ttlSeconds applied; 0 means never expire.
func (c *Cache) WithTTL(ttlSeconds int64) *Cache {
	cp := *c
	cp.ttlSeconds = ttlSeconds
	return &cp
}

func (c *Cache) path(jobID string, side Side) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.cache", jobID, side))
}

// HashConfig returns the first 16 hex characters of the BLAKE3 digest of
// configJSON, used to invalidate a cache entry when storage configuration
// changes between runs.
func HashConfig(configJSON string) string {
	sum := blake3.Sum256([]byte(configJSON))
	return hex.EncodeToString(sum[:])[:16]
}

// Load returns the cached tree for (jobID, side) if present, matching the
// given config hash, and within TTL. Any failure to satisfy those
// conditions is treated as a cache miss and the stale file, if any, is
// removed.
func (c *Cache) Load(jobID string, side Side, configJSON string) (*Result, bool) {
	path := c.path(jobID, side)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		os.Remove(path)
		return nil, false
	}

	if e.ConfigHash != HashConfig(configJSON) {
		c.log.Info("cache config mismatch, evicting", zap.String("path", path))
		os.Remove(path)
		return nil, false
	}

	now := time.Now().Unix()
	if c.ttlSeconds > 0 && now-e.CachedAt > c.ttlSeconds {
		c.log.Info("cache expired, evicting", zap.String("path", path), zap.Int64("age_seconds", now-e.CachedAt))
		os.Remove(path)
		return nil, false
	}

	c.log.Info("loaded cache", zap.Int("files", len(e.Files)), zap.String("age", FormatAge(now-e.CachedAt)))
	return &Result{Files: e.Files, CachedAt: e.CachedAt}, true
}

// Save writes files to the cache file for (jobID, side), stamped with the
// current time and the hash of configJSON.
func (c *Cache) Save(jobID string, side Side, configJSON string, files map[string]storage.FileInfo) error {
	e := entry{
		Files:      files,
		CachedAt:   time.Now().Unix(),
		ConfigHash: HashConfig(configJSON),
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := os.WriteFile(c.path(jobID, side), data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	c.log.Info("cached files", zap.Int("count", len(files)), zap.String("job_id", jobID), zap.String("side", string(side)))
	return nil
}

// Clear removes both side caches for jobID.
func (c *Cache) Clear(jobID string) {
	os.Remove(c.path(jobID, SideSource))
	os.Remove(c.path(jobID, SideDest))
}

// ClearAll removes every *.cache file under the cache directory.
func (c *Cache) ClearAll() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		if strings.HasSuffix(de.Name(), ".cache") {
			os.Remove(filepath.Join(c.dir, de.Name()))
		}
	}
}

// FormatAge renders a duration in seconds as a coarse human-readable age.
func FormatAge(ageSeconds int64) string {
	switch {
	case ageSeconds < 60:
		return fmt.Sprintf("%ds ago", ageSeconds)
	case ageSeconds < 3600:
		return fmt.Sprintf("%dm ago", ageSeconds/60)
	case ageSeconds < 86400:
		return fmt.Sprintf("%dh ago", ageSeconds/3600)
	default:
		return fmt.Sprintf("%dd ago", ageSeconds/86400)
	}
}
