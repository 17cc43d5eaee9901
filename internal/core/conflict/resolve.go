package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/storage"
)

// GenerateConflictName derives the sibling filename used when a conflict
// is resolved with ResolutionKeepBoth: "<name>_conflict_<side>_<ts><ext>".
func GenerateConflictName(path, side string, at time.Time) string {
	stamp := at.UTC().Format("20060102_150405")

	dot := strings.LastIndex(path, ".")
	slash := strings.LastIndex(path, "/")
	if dot == -1 || dot < slash {
		return fmt.Sprintf("%s_conflict_%s_%s", path, side, stamp)
	}
	return fmt.Sprintf("%s_conflict_%s_%s%s", path[:dot], side, stamp, path[dot:])
}

// Executor carries out a resolved conflict against the two storage sides.
type Executor struct {
	source storage.Storage
	dest   storage.Storage
}

// NewExecutor binds an Executor to a job's source and destination
// backends.
func NewExecutor(source, dest storage.Storage) *Executor {
	return &Executor{source: source, dest: dest}
}

// Execute applies resolution for path at the given instant (used to stamp
// any generated keep-both filename):
//
//   - keepSource: source's content overwrites the destination at path.
//   - keepDest:   destination's content overwrites the source at path.
//   - keepBoth:   the destination's existing content is preserved under a
//     generated sibling name on the source, then source's content
//     overwrites the destination at path, so neither side's data is
//     discarded.
//   - skip:       no data movement; the conflict stays pending.
func (e *Executor) Execute(ctx context.Context, path string, resolution model.ConflictResolution, at time.Time) error {
	switch resolution {
	case model.ResolutionKeepSource:
		data, err := e.source.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read source %s: %w", path, err)
		}
		if err := e.dest.Write(ctx, path, data); err != nil {
			return fmt.Errorf("write dest %s: %w", path, err)
		}
		return nil

	case model.ResolutionKeepDest:
		data, err := e.dest.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read dest %s: %w", path, err)
		}
		if err := e.source.Write(ctx, path, data); err != nil {
			return fmt.Errorf("write source %s: %w", path, err)
		}
		return nil

	case model.ResolutionKeepBoth:
		destData, err := e.dest.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read dest %s: %w", path, err)
		}
		siblingName := GenerateConflictName(path, "dest", at)
		if err := e.source.Write(ctx, siblingName, destData); err != nil {
			return fmt.Errorf("write conflict sibling %s: %w", siblingName, err)
		}
		srcData, err := e.source.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read source %s: %w", path, err)
		}
		if err := e.dest.Write(ctx, path, srcData); err != nil {
			return fmt.Errorf("write dest %s: %w", path, err)
		}
		return nil

	case model.ResolutionSkip:
		return nil

	default:
		return fmt.Errorf("unknown conflict resolution %q", resolution)
	}
}
