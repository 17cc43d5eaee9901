package filestate_test

import (
	"context"
	"testing"

	"github.com/cloudsync/enginecore/internal/core/db"
	"github.com/cloudsync/enginecore/internal/core/filestate"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger(logger.EnvironmentDevelopment, logger.LogLevelDebug, nil, logger.FileConfig{})
}

func newTestStore(t *testing.T) *filestate.Store {
	t.Helper()
	conn, err := db.InitDB(db.InitDBOptions{DSN: db.InMemoryDSN(), MigrationMode: db.MigrationModeVersioned, Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseDB(conn) })
	return filestate.NewStore(conn)
}

func TestStore_UpsertThenGetFileState(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()

	st := model.FileState{JobID: jobID, FilePath: "a/b.txt", Size: 42, ModifiedTime: 100, Checksum: "abc123"}
	require.NoError(t, store.Upsert(context.Background(), st))

	got, err := store.GetFileState(context.Background(), jobID, "a/b.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "abc123", got.Checksum)
	assert.NotZero(t, got.LastSyncTime)
}

func TestStore_GetFileStateMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetFileState(context.Background(), uuid.New(), "nope.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_UpsertIsIdempotentPerPath(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()

	require.NoError(t, store.Upsert(context.Background(), model.FileState{JobID: jobID, FilePath: "f.txt", Size: 1}))
	require.NoError(t, store.Upsert(context.Background(), model.FileState{JobID: jobID, FilePath: "f.txt", Size: 2}))

	states, err := store.GetJobStates(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, int64(2), states["f.txt"].Size)
}

func TestStore_BatchUpsertAndGetJobStates(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()

	states := []model.FileState{
		{JobID: jobID, FilePath: "one.txt", Size: 10},
		{JobID: jobID, FilePath: "two.txt", Size: 20},
		{JobID: jobID, FilePath: "three.txt", Size: 30},
	}
	require.NoError(t, store.BatchUpsert(context.Background(), states))

	got, err := store.GetJobStates(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(20), got["two.txt"].Size)
}

func TestStore_BatchUpsertEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.BatchUpsert(context.Background(), nil))
}

func TestStore_DeleteRemovesOnlyThatPath(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), model.FileState{JobID: jobID, FilePath: "a.txt", Size: 1}))
	require.NoError(t, store.Upsert(context.Background(), model.FileState{JobID: jobID, FilePath: "b.txt", Size: 2}))

	require.NoError(t, store.Delete(context.Background(), jobID, "a.txt"))

	states, err := store.GetJobStates(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Contains(t, states, "b.txt")
}

func TestStore_DeleteJobStatesRemovesAllForJob(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, store.BatchUpsert(context.Background(), []model.FileState{
		{JobID: jobID, FilePath: "a.txt", Size: 1},
		{JobID: jobID, FilePath: "b.txt", Size: 2},
	}))

	n, err := store.DeleteJobStates(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	states, err := store.GetJobStates(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestStore_CleanupMissingDeletesStaleEntries(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()
	require.NoError(t, store.BatchUpsert(context.Background(), []model.FileState{
		{JobID: jobID, FilePath: "kept.txt", Size: 1},
		{JobID: jobID, FilePath: "stale.txt", Size: 2},
	}))

	n, err := store.CleanupMissing(context.Background(), jobID, []string{"kept.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	states, err := store.GetJobStates(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Contains(t, states, "kept.txt")
}

func TestStore_CleanupMissingNoPathsIsNoop(t *testing.T) {
	store := newTestStore(t)
	n, err := store.CleanupMissing(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
