package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/studio-b12/gowebdav"
	"go.uber.org/zap"
)

// maxKnownDirs bounds the in-memory set of ancestor directories
// ensureParents has already created, so a long-running job doesn't grow it
// without limit; once full it's wiped and repopulated from scratch.
const maxKnownDirs = 10000

// WebDavStorage is a Storage backed by a WebDAV share. Most operations go
// through gowebdav's client; WriteStream bypasses it with a raw HTTP PUT
// since gowebdav buffers its Write call fully in memory, which defeats the
// point of streaming a large upload.
type WebDavStorage struct {
	client   *gowebdav.Client
	endpoint string
	username string
	password string
	name     string
	log      *zap.Logger

	dirsMu    sync.Mutex
	knownDirs map[string]struct{}
}

// NewWebDav dials a WebDAV endpoint and attempts to create its root
// directory; servers that reject or already have the root respond with an
// error this constructor ignores, matching the original engine's policy of
// never failing a job purely because root creation was redundant.
func NewWebDav(cfg model.StorageConfig) (*WebDavStorage, error) {
	client := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("webdav connect %s: %w", cfg.URL, err)
	}
	_ = client.MkdirAll("/", 0o755)

	return &WebDavStorage{
		client:    client,
		endpoint:  strings.TrimSuffix(cfg.URL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		name:      "webdav:" + cfg.URL,
		log:       logger.Named("core.storage.webdav"),
		knownDirs: make(map[string]struct{}),
	}, nil
}

func (s *WebDavStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	var files []FileInfo
	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := s.client.ReadDir(dir)
		if err != nil {
			if isWebDavNotFound(err) {
				return nil
			}
			return fmt.Errorf("readdir %s: %w", dir, err)
		}
		for _, entry := range entries {
			full := path.Join(dir, entry.Name())
			rel := NormalizePath(full)
			if entry.IsDir() {
				files = append(files, FileInfo{Path: rel, IsDir: true, ModifiedTime: entry.ModTime().Unix()})
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			files = append(files, FileInfo{
				Path:         rel,
				Size:         entry.Size(),
				ModifiedTime: entry.ModTime().Unix(),
				Checksum:     webdavETag(entry),
			})
		}
		return nil
	}

	root := "/" + NormalizePath(prefix)
	if err := walk(root); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *WebDavStorage) Stat(ctx context.Context, p string) (*FileMeta, error) {
	var meta *FileMeta
	err := withTimeout(ctx, OpTimeout, func() error {
		info, err := s.client.Stat("/" + NormalizePath(p))
		if err != nil {
			if isWebDavNotFound(err) {
				return nil
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		var size int64
		if !info.IsDir() {
			size = info.Size()
		}
		meta = &FileMeta{
			Size:         size,
			ModifiedTime: info.ModTime().Unix(),
			IsDir:        info.IsDir(),
			Checksum:     webdavETag(info),
		}
		return nil
	})
	return meta, err
}

func (s *WebDavStorage) Read(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := withTimeout(ctx, IOTimeout, func() error {
		d, err := s.client.Read("/" + NormalizePath(p))
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		data = d
		return nil
	})
	return data, err
}

func (s *WebDavStorage) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	var out []byte
	err := withTimeout(ctx, IOTimeout, func() error {
		rc, err := s.client.ReadStreamRange("/"+NormalizePath(p), offset, length)
		if err != nil {
			return fmt.Errorf("read range %s: %w", p, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read range %s: %w", p, err)
		}
		out = data
		return nil
	})
	return out, err
}

// Write stores data, creating every ancestor directory first, mirroring the
// original engine's segment-by-segment directory creation since many WebDAV
// servers reject a PUT whose parent does not already exist.
func (s *WebDavStorage) Write(ctx context.Context, p string, data []byte) error {
	if err := s.ensureParents(ctx, p); err != nil {
		return err
	}
	return withTimeout(ctx, IOTimeout, func() error {
		if err := s.client.Write("/"+NormalizePath(p), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		return nil
	})
}

// WriteStream bypasses gowebdav with a raw authenticated PUT so the body is
// streamed rather than buffered in full beforehand.
func (s *WebDavStorage) WriteStream(ctx context.Context, p string, r io.Reader, totalSize int64) error {
	if err := s.ensureParents(ctx, p); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	url := s.endpoint + "/" + NormalizePath(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return fmt.Errorf("build put request %s: %w", p, err)
	}
	req.SetBasicAuth(s.username, s.password)
	if totalSize > 0 {
		req.ContentLength = totalSize
		req.Header.Set("Content-Length", strconv.FormatInt(totalSize, 10))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webdav put %s failed: %s: %s", p, resp.Status, string(body))
	}
	return nil
}

func (s *WebDavStorage) Delete(ctx context.Context, p string) error {
	return withTimeout(ctx, OpTimeout, func() error {
		if err := s.client.RemoveAll("/" + NormalizePath(p)); err != nil && !isWebDavNotFound(err) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
		return nil
	})
}

func (s *WebDavStorage) CreateDir(ctx context.Context, p string) error {
	return withTimeout(ctx, OpTimeout, func() error {
		if err := s.client.MkdirAll("/"+NormalizePath(p), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", p, err)
		}
		return nil
	})
}

func (s *WebDavStorage) Name() string { return s.name }

// ensureParents creates every ancestor directory of path one segment at a
// time, ignoring per-segment errors since a segment may already exist. A
// capped in-memory set of directories already created by this instance
// skips the redundant MKCOL calls that would otherwise fire on every write,
// which some WebDAV servers answer with 423 Locked under concurrent load.
func (s *WebDavStorage) ensureParents(ctx context.Context, p string) error {
	dir := path.Dir(NormalizePath(p))
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current += seg + "/"
		if s.dirKnown(current) {
			continue
		}
		target := current
		if err := withTimeout(ctx, OpTimeout, func() error {
			return s.client.Mkdir("/"+target, 0o755)
		}); err != nil {
			s.log.Debug("mkdir ancestor failed, continuing", zap.String("dir", target), zap.Error(err))
		}
		s.markDirKnown(current)
	}
	return nil
}

func (s *WebDavStorage) dirKnown(dir string) bool {
	s.dirsMu.Lock()
	defer s.dirsMu.Unlock()
	_, ok := s.knownDirs[dir]
	return ok
}

func (s *WebDavStorage) markDirKnown(dir string) {
	s.dirsMu.Lock()
	defer s.dirsMu.Unlock()
	if s.knownDirs == nil || len(s.knownDirs) >= maxKnownDirs {
		s.knownDirs = make(map[string]struct{})
	}
	s.knownDirs[dir] = struct{}{}
}

func isWebDavNotFound(err error) bool {
	return os.IsNotExist(err)
}

func webdavETag(info os.FileInfo) string {
	type etagger interface{ ETag() string }
	if e, ok := info.(etagger); ok {
		return strings.Trim(e.ETag(), `"`)
	}
	return ""
}
