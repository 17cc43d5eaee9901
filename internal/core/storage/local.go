package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"go.uber.org/zap"
)

// LocalStorage is a Storage backed by a directory on the local filesystem.
// List runs the directory walk on a dedicated goroutine so it never starves
// the caller's own scheduling, mirroring the blocking-IO worker pattern the
// original engine used for its local backend.
type LocalStorage struct {
	basePath string
	name     string
	log      *zap.Logger
}

// NewLocal opens (creating if necessary) a LocalStorage rooted at path.
func NewLocal(path string) (*LocalStorage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create local root %s: %w", path, err)
		}
	}
	return &LocalStorage{
		basePath: path,
		name:     "local:" + path,
		log:      logger.Named("core.storage.local"),
	}, nil
}

func (s *LocalStorage) resolve(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return s.basePath
	}
	return filepath.Join(s.basePath, filepath.FromSlash(path))
}

func (s *LocalStorage) relative(full string) (string, error) {
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	base := s.resolve(prefix)

	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	type result struct {
		files []FileInfo
		err   error
	}
	done := make(chan result, 1)

	go func() {
		var files []FileInfo
		walkErr := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := s.relative(p)
			if relErr != nil {
				return relErr
			}
			if rel == "." || rel == "" {
				return nil
			}
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			var size int64
			if !info.IsDir() {
				size = info.Size()
			}
			files = append(files, FileInfo{
				Path:         rel,
				Size:         size,
				ModifiedTime: info.ModTime().Unix(),
				IsDir:        info.IsDir(),
			})
			return nil
		})
		done <- result{files: files, err: walkErr}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("walk %s: %w", base, res.err)
		}
		return res.files, nil
	}
}

func (s *LocalStorage) Stat(ctx context.Context, path string) (*FileMeta, error) {
	var meta *FileMeta
	err := withTimeout(ctx, OpTimeout, func() error {
		full := s.resolve(path)
		info, statErr := os.Stat(full)
		if os.IsNotExist(statErr) {
			return nil
		}
		if statErr != nil {
			return fmt.Errorf("stat %s: %w", full, statErr)
		}
		var size int64
		if !info.IsDir() {
			size = info.Size()
		}
		meta = &FileMeta{
			Size:         size,
			ModifiedTime: info.ModTime().Unix(),
			IsDir:        info.IsDir(),
		}
		return nil
	})
	return meta, err
}

func (s *LocalStorage) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := withTimeout(ctx, IOTimeout, func() error {
		d, readErr := os.ReadFile(s.resolve(path))
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		data = d
		return nil
	})
	return data, err
}

func (s *LocalStorage) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	var out []byte
	err := withTimeout(ctx, IOTimeout, func() error {
		f, err := os.Open(s.resolve(path))
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", path, err)
		}

		buf := make([]byte, length)
		n, readErr := io.ReadFull(f, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return fmt.Errorf("read range %s: %w", path, readErr)
		}
		out = buf[:n]
		return nil
	})
	return out, err
}

func (s *LocalStorage) Write(ctx context.Context, path string, data []byte) error {
	return withTimeout(ctx, IOTimeout, func() error {
		full := s.resolve(path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", path, err)
		}

		tmp := full + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("write temp for %s: %w", path, err)
		}
		if err := os.Rename(tmp, full); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("rename temp into %s: %w", path, err)
		}
		return nil
	})
}

func (s *LocalStorage) WriteStream(ctx context.Context, path string, r io.Reader, totalSize int64) error {
	return withTimeout(ctx, IOTimeout, func() error {
		full := s.resolve(path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", path, err)
		}

		tmp := full + ".tmp"
		out, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create temp for %s: %w", path, err)
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("stream write %s: %w", path, err)
		}
		if err := out.Close(); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("close temp for %s: %w", path, err)
		}
		if err := os.Rename(tmp, full); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("rename temp into %s: %w", path, err)
		}
		return nil
	})
}

func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	return withTimeout(ctx, OpTimeout, func() error {
		full := s.resolve(path)
		info, err := os.Stat(full)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stat %s before delete: %w", path, err)
		}
		if info.IsDir() {
			if err := os.RemoveAll(full); err != nil {
				return fmt.Errorf("remove dir %s: %w", path, err)
			}
			return nil
		}
		if err := os.Remove(full); err != nil {
			return fmt.Errorf("remove file %s: %w", path, err)
		}
		return nil
	})
}

func (s *LocalStorage) CreateDir(ctx context.Context, path string) error {
	return withTimeout(ctx, OpTimeout, func() error {
		if err := os.MkdirAll(s.resolve(path), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", path, err)
		}
		return nil
	})
}

func (s *LocalStorage) Name() string { return s.name }
