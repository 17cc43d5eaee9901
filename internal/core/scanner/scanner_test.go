package scanner

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	entries []storage.FileInfo
}

func (f *fakeStorage) List(ctx context.Context, prefix string) ([]storage.FileInfo, error) {
	return f.entries, nil
}
func (f *fakeStorage) Stat(ctx context.Context, path string) (*storage.FileMeta, error) { return nil, nil }
func (f *fakeStorage) Read(ctx context.Context, path string) ([]byte, error)            { return nil, nil }
func (f *fakeStorage) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	return nil, nil
}
func (f *fakeStorage) Write(ctx context.Context, path string, data []byte) error { return nil }
func (f *fakeStorage) WriteStream(ctx context.Context, path string, r io.Reader, totalSize int64) error {
	return nil
}
func (f *fakeStorage) Delete(ctx context.Context, path string) error     { return nil }
func (f *fakeStorage) CreateDir(ctx context.Context, path string) error { return nil }
func (f *fakeStorage) Name() string                                     { return "fake" }

func TestScan_ExcludesDefaultPatterns(t *testing.T) {
	backend := &fakeStorage{entries: []storage.FileInfo{
		{Path: "a.txt", Size: 10},
		{Path: ".git/config", Size: 5},
		{Path: "node_modules/pkg/index.js", Size: 20},
		{Path: ".DS_Store", Size: 1},
		{Path: "dir", IsDir: true},
	}}

	s, err := New(DefaultConfig())
	require.NoError(t, err)

	tree, err := s.Scan(context.Background(), backend, "", nil)
	require.NoError(t, err)

	assert.Len(t, tree, 1)
	assert.Contains(t, tree, "a.txt")
}

func TestScan_MaxFileSize(t *testing.T) {
	backend := &fakeStorage{entries: []storage.FileInfo{
		{Path: "small.bin", Size: 100},
		{Path: "big.bin", Size: 1_000_000},
	}}

	cfg := DefaultConfig()
	cfg.MaxFileSize = 500
	s, err := New(cfg)
	require.NoError(t, err)

	tree, err := s.Scan(context.Background(), backend, "", nil)
	require.NoError(t, err)

	assert.Contains(t, tree, "small.bin")
	assert.NotContains(t, tree, "big.bin")
}

func TestScan_IncludeExtensions(t *testing.T) {
	backend := &fakeStorage{entries: []storage.FileInfo{
		{Path: "doc.txt", Size: 1},
		{Path: "image.png", Size: 1},
	}}

	cfg := DefaultConfig()
	cfg.IncludeExtensions = []string{"png"}
	s, err := New(cfg)
	require.NoError(t, err)

	tree, err := s.Scan(context.Background(), backend, "", nil)
	require.NoError(t, err)

	assert.NotContains(t, tree, "doc.txt")
	assert.Contains(t, tree, "image.png")
}

func TestScan_RespectsCancellation(t *testing.T) {
	backend := &fakeStorage{entries: []storage.FileInfo{{Path: "a.txt", Size: 1}}}
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	var cancelled atomic.Bool
	cancelled.Store(true)

	_, err = s.Scan(context.Background(), backend, "", &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
