// Package model holds the data types shared across the sync engine's
// components: jobs, storage configuration, run history, and conflicts.
package model

import (
	"time"

	"github.com/google/uuid"
)

// BackendType identifies which Storage implementation a StorageConfig
// describes.
type BackendType string

const (
	BackendLocal  BackendType = "local"
	BackendS3     BackendType = "s3"
	BackendWebDav BackendType = "webdav"
)

// StorageConfig is a tagged record describing one side (source or
// destination) of a SyncJob. Only the fields relevant to Type are
// meaningful; its JSON is hashed (via filecache.HashConfig) to invalidate
// the file-list cache when it changes.
type StorageConfig struct {
	Type BackendType `json:"type"`

	// Local
	RootPath string `json:"rootPath,omitempty"`

	// S3
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	ForcePathStyle  bool   `json:"forcePathStyle,omitempty"`

	// WebDAV
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// SyncMode selects the comparator's reconciliation semantics.
type SyncMode string

const (
	ModeBidirectional SyncMode = "bidirectional"
	ModeMirror        SyncMode = "mirror"
	ModeBackup        SyncMode = "backup"
)

// ConflictResolution is the user-preselected choice for a given path's
// conflict, or the registry default.
type ConflictResolution string

const (
	ResolutionKeepSource ConflictResolution = "keep_source"
	ResolutionKeepDest   ConflictResolution = "keep_dest"
	ResolutionKeepBoth   ConflictResolution = "keep_both"
	ResolutionSkip       ConflictResolution = "skip"
)

// ParseConflictResolution mirrors the original engine's lenient parsing:
// any unrecognized string defaults to Skip rather than erroring, since a
// typo in a conflict-resolution map should never escalate into a failed
// run.
func ParseConflictResolution(s string) ConflictResolution {
	switch ConflictResolution(s) {
	case ResolutionKeepSource, ResolutionKeepDest, ResolutionKeepBoth, ResolutionSkip:
		return ConflictResolution(s)
	default:
		return ResolutionSkip
	}
}

// SyncJob is a declarative description of one source/destination pair and
// the mode used to reconcile them.
type SyncJob struct {
	ID        uuid.UUID
	Name      string
	SourceCfg StorageConfig
	DestCfg   StorageConfig
	Mode      SyncMode
	Schedule  string // optional cron expression; empty means manual-only
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// ConflictResolutions maps a file path to the resolution a caller
	// preselected for it, supplied on a per-run basis via startSync
	// rather than persisted with the job definition. A path absent from
	// the map falls back to recording the conflict in the registry.
	ConflictResolutions map[string]ConflictResolution `json:"conflictResolutions,omitempty"`
}

// RunStatus is the terminal (or current) state of one engine run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusScanning  RunStatus = "scanning"
	StatusComparing RunStatus = "comparing"
	StatusSyncing   RunStatus = "syncing"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// HistoryRow is one persisted record of a terminated engine run.
type HistoryRow struct {
	ID               int64
	JobID            uuid.UUID
	StartTime        time.Time
	EndTime          *time.Time
	Status           RunStatus
	FilesScanned     int
	FilesCopied      int
	FilesDeleted     int
	FilesSkipped     int
	FilesFailed      int
	BytesTransferred int64
	ErrorMessage     string
}

// ConflictKind classifies why the comparator could not decide a winner.
type ConflictKind string

const (
	ConflictBothModified          ConflictKind = "both_modified"
	ConflictSameSizeDifferentTime ConflictKind = "same_size_different_time"
	ConflictModifiedVsDeleted     ConflictKind = "modified_vs_deleted"
)

// ConflictRecord is the persisted row backing the conflict registry.
type ConflictRecord struct {
	ID         int64
	JobID      uuid.UUID
	FilePath   string
	Kind       ConflictKind
	Resolution *ConflictResolution
	SourceSize *int64
	SourceTime *int64
	DestSize   *int64
	DestTime   *int64
	CreatedAt  time.Time
}

// TransferStatus is the lifecycle state of one streamed transfer.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferPaused     TransferStatus = "paused"
)

// TransferState is the persisted per-transfer progress record of a
// streamed transfer.
type TransferState struct {
	ID              int64
	JobID           uuid.UUID
	FilePath        string
	TotalSize       int64
	TransferredSize int64
	UploadID        string
	PartsCompleted  []int
	Status          TransferStatus
	StartedAt       time.Time
	UpdatedAt       time.Time
}

// FileState is the persistent per-(jobID,path) record of the last
// successfully synced size + content hash, used for incremental skip.
type FileState struct {
	JobID        uuid.UUID
	FilePath     string
	Size         int64
	ModifiedTime int64
	Checksum     string
	LastSyncTime int64
}

// SyncProgress is one tick published by the engine's progress ticker.
type SyncProgress struct {
	JobID            uuid.UUID
	RunID            uuid.UUID
	Status           RunStatus
	FilesCompleted   int
	FilesFailed      int
	FilesToSync      int
	BytesTransferred int64
	ThroughputBps    float64
	ETASeconds       float64
}

// SyncReport is the terminal summary of one engine run.
type SyncReport struct {
	RunID            uuid.UUID
	JobID            uuid.UUID
	Status           RunStatus
	FilesScanned     int
	FilesCopied      int
	FilesDeleted     int
	FilesSkipped     int
	FilesFailed      int
	BytesTransferred int64
	Errors           []string
	StartTime        time.Time
	EndTime          time.Time
}

// DiffResult is the outcome of analyzing a job without executing it.
type DiffResult struct {
	JobID            uuid.UUID
	SourceCachedAt   *int64
	DestCachedAt     *int64
	CopyCount        int
	CopyBytes        int64
	ReverseCopyCount int
	ReverseCopyBytes int64
	DeleteCount      int
	SkipCount        int
	ConflictCount    int
}
