package filestate

import (
	"github.com/cloudsync/enginecore/internal/core/comparator"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/storage"
)

// ApplyIncrementalSkips rewrites Copy actions to Skip when the file's
// tracked state proves it already reached the destination unchanged. It
// only consults hashes, so the caller must have already computed
// currentHashes for the paths it wants considered.
//
// A Copy may only be rewritten this way when destTree actually contains
// the path: a Copy with no destination entry means the file has never
// reached the other side, and skipping it on state match would leave the
// destination permanently missing the file — the state row only proves
// "this is what we last synced", not "this is currently present there".
func ApplyIncrementalSkips(
	actions []comparator.SyncAction,
	destTree map[string]storage.FileInfo,
	states map[string]model.FileState,
	currentHashes map[string]string,
) []comparator.SyncAction {
	result := make([]comparator.SyncAction, 0, len(actions))

	for _, action := range actions {
		if action.Kind != comparator.ActionCopy {
			result = append(result, action)
			continue
		}

		path := action.SourcePath
		if _, present := destTree[path]; !present {
			result = append(result, action)
			continue
		}

		state, tracked := states[path]
		if !tracked {
			result = append(result, action)
			continue
		}

		hash, computed := currentHashes[path]
		if !computed || hash == "" || state.Checksum == "" || hash != state.Checksum {
			result = append(result, action)
			continue
		}

		if action.Size != state.Size {
			result = append(result, action)
			continue
		}

		result = append(result, comparator.SyncAction{
			Kind: comparator.ActionSkip,
			Path: path,
		})
	}

	return result
}
