// Package ports defines the interfaces the API and scheduling layers
// depend on, so they never import concrete engine/runner/store types
// directly. This keeps wiring in cmd/ swappable and the API layer
// testable behind fakes.
package ports

import (
	"context"
	"time"

	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/google/uuid"
)

// SyncEngine executes one job's sync run and reports its outcome.
type SyncEngine interface {
	Run(ctx context.Context, job model.SyncJob, progress ProgressSink) model.SyncReport
	Analyze(ctx context.Context, job model.SyncJob) (model.DiffResult, error)
	Cancel()
}

// ProgressSink receives progress ticks published during a run.
// Implementations must not block; a slow subscriber should drop ticks
// rather than stall the worker pool publishing them.
type ProgressSink interface {
	Publish(model.SyncProgress)
}

// ProgressSinkFunc adapts a plain function to ProgressSink.
type ProgressSinkFunc func(model.SyncProgress)

// Publish implements ProgressSink.
func (f ProgressSinkFunc) Publish(p model.SyncProgress) { f(p) }

// Runner manages the lifecycle of background job executions, one engine
// run per job at a time.
type Runner interface {
	Start()
	Stop()
	StartJob(job model.SyncJob, trigger string) error
	StopJob(jobID uuid.UUID) error
	IsRunning(jobID uuid.UUID) bool
}

// Scheduler drives cron-triggered job runs.
type Scheduler interface {
	Start()
	Stop()
	AddJob(job model.SyncJob) error
	RemoveJob(jobID uuid.UUID) error
}

// JobStore provides CRUD operations over SyncJob definitions.
type JobStore interface {
	Create(ctx context.Context, job model.SyncJob) (model.SyncJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.SyncJob, error)
	List(ctx context.Context) ([]model.SyncJob, error)
	Update(ctx context.Context, job model.SyncJob) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// HistorySink persists and retrieves terminated run history.
type HistorySink interface {
	Start(ctx context.Context, jobID uuid.UUID, startTime time.Time) (int64, error)
	Finish(ctx context.Context, id int64, report model.SyncReport) error
	History(ctx context.Context, jobID uuid.UUID, limit int) ([]model.HistoryRow, error)
}

// ConnectionTester probes a storage backend's reachability, for a "test
// connection" UI action.
type ConnectionTester interface {
	Test(ctx context.Context, cfg model.StorageConfig) error
}

// ConflictRegistry records and resolves sync conflicts a job's comparator
// could not decide automatically.
type ConflictRegistry interface {
	PendingConflicts(ctx context.Context, jobID uuid.UUID) ([]model.ConflictRecord, error)
	Resolve(ctx context.Context, id int64, resolution model.ConflictResolution) error
	ResolveMany(ctx context.Context, resolutions map[int64]model.ConflictResolution) error
}
