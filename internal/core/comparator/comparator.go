// Package comparator turns two scanned file trees plus a sync mode into a
// deterministic, ordered list of actions: copy, delete, skip, or conflict.
// CompareTrees is a pure function over its inputs — no I/O, no clock reads —
// so the engine can run it repeatedly against the same trees for a dry-run
// diff without side effects.
package comparator

import (
	"sort"

	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/storage"
)

// ActionKind discriminates the SyncAction union.
type ActionKind int

const (
	ActionCopy ActionKind = iota
	ActionConflict
	ActionDelete
	ActionSkip
)

// sortOrder fixes the ordering actions are emitted in: copies before
// conflicts before deletes before skips, then lexically by path. A stable
// order lets two runs over identical trees produce identical reports.
func (k ActionKind) sortOrder() int {
	switch k {
	case ActionCopy:
		return 0
	case ActionConflict:
		return 1
	case ActionDelete:
		return 2
	case ActionSkip:
		return 3
	default:
		return 4
	}
}

// SyncAction is one unit of work the engine's execution loop consumes.
type SyncAction struct {
	Kind ActionKind

	// Copy
	SourcePath string
	DestPath   string
	Size       int64
	Reverse    bool // true: dest -> source (bidirectional mode only)

	// Delete
	Path     string
	FromDest bool

	// Conflict
	SourceInfo   *storage.FileInfo
	DestInfo     *storage.FileInfo
	ConflictKind model.ConflictKind
}

// sortPath returns the action's sort key path regardless of which field it's
// stored under.
func (a SyncAction) sortPath() string {
	switch a.Kind {
	case ActionCopy:
		return a.SourcePath
	default:
		return a.Path
	}
}

// FileRelation is the outcome of comparing one path present on both sides.
type FileRelation int

const (
	RelationEqual FileRelation = iota
	RelationSourceNewer
	RelationDestNewer
	RelationDifferent
	RelationProbablyEqual
)

// CompareConfig tunes how two same-path files are judged equal.
type CompareConfig struct {
	TimeToleranceSeconds int64
	UseChecksum          bool
	IgnoreMtime          bool
	// SizeOnlyForSameSize treats equal-size files as equal without
	// consulting mtime, which is the right default for backends (WebDAV,
	// some S3-compatible gateways) that don't preserve modification time.
	SizeOnlyForSameSize bool
}

// DefaultCompareConfig matches the engine's factory defaults.
func DefaultCompareConfig() CompareConfig {
	return CompareConfig{
		TimeToleranceSeconds: 2,
		SizeOnlyForSameSize:  true,
	}
}

// Comparator compares files and whole trees under one CompareConfig.
type Comparator struct {
	cfg CompareConfig
}

// New builds a Comparator. useChecksum shortcuts straight to a checksum
// comparison when both sides report one.
func New(useChecksum bool) *Comparator {
	cfg := DefaultCompareConfig()
	cfg.UseChecksum = useChecksum
	return &Comparator{cfg: cfg}
}

// WithConfig builds a Comparator from a fully specified CompareConfig.
func WithConfig(cfg CompareConfig) *Comparator {
	return &Comparator{cfg: cfg}
}

// CompareFiles judges the relation between two same-path entries.
func (c *Comparator) CompareFiles(source, dest storage.FileInfo) FileRelation {
	if c.cfg.UseChecksum && source.Checksum != "" && dest.Checksum != "" {
		if source.Checksum == dest.Checksum {
			return RelationEqual
		}
		return RelationDifferent
	}

	if source.Size != dest.Size {
		return RelationDifferent
	}

	if c.cfg.SizeOnlyForSameSize {
		return RelationEqual
	}

	if c.cfg.IgnoreMtime {
		return RelationProbablyEqual
	}

	diff := source.ModifiedTime - dest.ModifiedTime
	if diff < 0 {
		diff = -diff
	}
	if diff <= c.cfg.TimeToleranceSeconds {
		return RelationEqual
	}

	if source.ModifiedTime > dest.ModifiedTime {
		return RelationSourceNewer
	}
	return RelationDestNewer
}

// CompareTrees reconciles source and dest under mode, returning a
// deterministically ordered action list.
func (c *Comparator) CompareTrees(source, dest map[string]storage.FileInfo, mode model.SyncMode) []SyncAction {
	paths := make(map[string]struct{}, len(source)+len(dest))
	for p := range source {
		paths[p] = struct{}{}
	}
	for p := range dest {
		paths[p] = struct{}{}
	}

	actions := make([]SyncAction, 0, len(paths))

	for p := range paths {
		src, hasSrc := source[p]
		dst, hasDst := dest[p]

		switch {
		case hasSrc && hasDst:
			if src.IsDir && dst.IsDir {
				continue
			}
			actions = append(actions, c.compareBothSides(p, src, dst, mode)...)

		case hasSrc && !hasDst:
			if src.IsDir {
				continue
			}
			actions = append(actions, SyncAction{
				Kind: ActionCopy, SourcePath: p, DestPath: p, Size: src.Size,
			})

		case hasDst && !hasSrc:
			if dst.IsDir {
				continue
			}
			actions = append(actions, c.destOnly(p, dst, mode))
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		oi, oj := actions[i].Kind.sortOrder(), actions[j].Kind.sortOrder()
		if oi != oj {
			return oi < oj
		}
		return actions[i].sortPath() < actions[j].sortPath()
	})

	return actions
}

func (c *Comparator) compareBothSides(path string, src, dst storage.FileInfo, mode model.SyncMode) []SyncAction {
	switch c.CompareFiles(src, dst) {
	case RelationEqual, RelationProbablyEqual:
		return []SyncAction{{Kind: ActionSkip, Path: path}}

	case RelationSourceNewer:
		return []SyncAction{{Kind: ActionCopy, SourcePath: path, DestPath: path, Size: src.Size}}

	case RelationDestNewer:
		if mode == model.ModeBidirectional {
			return []SyncAction{{Kind: ActionCopy, SourcePath: path, DestPath: path, Size: dst.Size, Reverse: true}}
		}
		return []SyncAction{{Kind: ActionCopy, SourcePath: path, DestPath: path, Size: src.Size}}

	default: // RelationDifferent
		if mode == model.ModeBidirectional {
			srcCopy, dstCopy := src, dst
			return []SyncAction{{
				Kind: ActionConflict, Path: path,
				SourceInfo: &srcCopy, DestInfo: &dstCopy,
				ConflictKind: model.ConflictBothModified,
			}}
		}
		return []SyncAction{{Kind: ActionCopy, SourcePath: path, DestPath: path, Size: src.Size}}
	}
}

func (c *Comparator) destOnly(path string, dst storage.FileInfo, mode model.SyncMode) SyncAction {
	switch mode {
	case model.ModeMirror:
		return SyncAction{Kind: ActionDelete, Path: path, FromDest: true}
	case model.ModeBidirectional:
		return SyncAction{Kind: ActionCopy, SourcePath: path, DestPath: path, Size: dst.Size, Reverse: true}
	default: // ModeBackup
		return SyncAction{Kind: ActionSkip, Path: path}
	}
}

// ActionSummary tallies a CompareTrees result for progress/report display.
type ActionSummary struct {
	CopyCount        int
	CopyBytes        int64
	ReverseCopyCount int
	ReverseCopyBytes int64
	DeleteCount      int
	SkipCount        int
	ConflictCount    int
}

func (s ActionSummary) TotalFiles() int {
	return s.CopyCount + s.ReverseCopyCount + s.DeleteCount + s.SkipCount + s.ConflictCount
}

func (s ActionSummary) TotalTransferBytes() int64 {
	return s.CopyBytes + s.ReverseCopyBytes
}

// Summarize tallies actions into an ActionSummary.
func Summarize(actions []SyncAction) ActionSummary {
	var s ActionSummary
	for _, a := range actions {
		switch a.Kind {
		case ActionCopy:
			if a.Reverse {
				s.ReverseCopyCount++
				s.ReverseCopyBytes += a.Size
			} else {
				s.CopyCount++
				s.CopyBytes += a.Size
			}
		case ActionDelete:
			s.DeleteCount++
		case ActionSkip:
			s.SkipCount++
		case ActionConflict:
			s.ConflictCount++
		}
	}
	return s
}
