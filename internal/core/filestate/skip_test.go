package filestate

import (
	"testing"

	"github.com/cloudsync/enginecore/internal/core/comparator"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestApplyIncrementalSkips_SkipsWhenDestHasMatchingState(t *testing.T) {
	jobID := uuid.New()
	actions := []comparator.SyncAction{
		{Kind: comparator.ActionCopy, SourcePath: "a.txt", DestPath: "a.txt", Size: 100},
	}
	destTree := map[string]storage.FileInfo{"a.txt": {Path: "a.txt", Size: 100}}
	states := map[string]model.FileState{
		"a.txt": {JobID: jobID, FilePath: "a.txt", Size: 100, Checksum: "deadbeef"},
	}
	hashes := map[string]string{"a.txt": "deadbeef"}

	result := ApplyIncrementalSkips(actions, destTree, states, hashes)

	assert.Len(t, result, 1)
	assert.Equal(t, comparator.ActionSkip, result[0].Kind)
	assert.Equal(t, "a.txt", result[0].Path)
}

// This is the fix for the known hash-skip bug: a Copy whose destination is
// absent must never be rewritten to Skip, even if a stale state row exists
// from a prior run whose destination copy was later deleted out-of-band.
func TestApplyIncrementalSkips_NeverSkipsWhenDestAbsent(t *testing.T) {
	jobID := uuid.New()
	actions := []comparator.SyncAction{
		{Kind: comparator.ActionCopy, SourcePath: "new.txt", DestPath: "new.txt", Size: 50},
	}
	destTree := map[string]storage.FileInfo{} // dest does not have the file
	states := map[string]model.FileState{
		"new.txt": {JobID: jobID, FilePath: "new.txt", Size: 50, Checksum: "cafef00d"},
	}
	hashes := map[string]string{"new.txt": "cafef00d"}

	result := ApplyIncrementalSkips(actions, destTree, states, hashes)

	assert.Len(t, result, 1)
	assert.Equal(t, comparator.ActionCopy, result[0].Kind, "copy to an absent destination must never be hash-skipped")
}

func TestApplyIncrementalSkips_NoStateTrackedLeavesActionUnchanged(t *testing.T) {
	actions := []comparator.SyncAction{
		{Kind: comparator.ActionCopy, SourcePath: "b.txt", DestPath: "b.txt", Size: 10},
	}
	destTree := map[string]storage.FileInfo{"b.txt": {Path: "b.txt", Size: 10}}

	result := ApplyIncrementalSkips(actions, destTree, map[string]model.FileState{}, map[string]string{})

	assert.Equal(t, comparator.ActionCopy, result[0].Kind)
}

func TestApplyIncrementalSkips_HashMismatchKeepsCopy(t *testing.T) {
	jobID := uuid.New()
	actions := []comparator.SyncAction{
		{Kind: comparator.ActionCopy, SourcePath: "c.txt", DestPath: "c.txt", Size: 10},
	}
	destTree := map[string]storage.FileInfo{"c.txt": {Path: "c.txt", Size: 10}}
	states := map[string]model.FileState{
		"c.txt": {JobID: jobID, FilePath: "c.txt", Size: 10, Checksum: "old"},
	}
	hashes := map[string]string{"c.txt": "new"}

	result := ApplyIncrementalSkips(actions, destTree, states, hashes)

	assert.Equal(t, comparator.ActionCopy, result[0].Kind)
}

func TestApplyIncrementalSkips_NonCopyActionsPassThrough(t *testing.T) {
	actions := []comparator.SyncAction{
		{Kind: comparator.ActionDelete, Path: "d.txt"},
		{Kind: comparator.ActionSkip, Path: "e.txt"},
	}

	result := ApplyIncrementalSkips(actions, nil, nil, nil)

	assert.Equal(t, actions, result)
}
