// Package runner manages asynchronous execution of sync jobs: at most one
// run per job at a time, with cooperative cancellation and automatic
// history logging.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger identifies what caused a job run to start. Unlike Manual and
// Scheduled triggers, a Realtime trigger never interrupts an in-flight
// run for the same job — it is assumed to fire often (e.g. on every
// filesystem event) and an in-progress sync already covers it.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerRealtime  = "realtime"
)

type runInfo struct {
	cancel context.CancelFunc
	runID  uuid.UUID
	done   chan struct{}
}

// Runner manages the execution of sync jobs.
type Runner struct {
	engine  ports.SyncEngine
	history ports.HistorySink
	progress ports.ProgressSink

	logger *zap.Logger

	mu      sync.Mutex
	running map[uuid.UUID]runInfo
	wg      sync.WaitGroup
}

// NewRunner creates a new Runner. progress may be nil if no live updates
// are needed (e.g. a one-shot CLI invocation).
func NewRunner(engine ports.SyncEngine, history ports.HistorySink, progress ports.ProgressSink) *Runner {
	return &Runner{
		engine:   engine,
		history:  history,
		progress: progress,
		logger:   logger.Named("core.runner"),
		running:  make(map[uuid.UUID]runInfo),
	}
}

// Start initializes the runner (no-op currently, reserved for future use).
func (r *Runner) Start() {}

// Stop cancels all running jobs and waits for them to finish.
func (r *Runner) Stop() {
	r.logger.Info("stopping runner, cancelling all jobs")
	r.mu.Lock()
	for id, info := range r.running {
		r.logger.Info("cancelling job", zap.Stringer("job_id", id))
		info.cancel()
	}
	r.mu.Unlock()

	r.logger.Info("waiting for running jobs to finish")
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// StartJob starts a job execution asynchronously.
//
// For Realtime triggers, it skips if the job is already running to avoid
// interrupting an ongoing sync with every filesystem event. For Manual and
// Scheduled triggers, it cancels any existing execution of the same job
// and waits for it to finish before starting the new one.
func (r *Runner) StartJob(job model.SyncJob, trigger string) error {
	jobID := job.ID
	runID := uuid.New()

	r.mu.Lock()
	if info, ok := r.running[jobID]; ok {
		if trigger == TriggerRealtime {
			r.mu.Unlock()
			r.logger.Debug("job already running, skipping realtime trigger",
				zap.Stringer("job_id", jobID), zap.Stringer("existing_run_id", info.runID))
			return nil
		}
		r.logger.Info("cancelling existing job execution", zap.Stringer("job_id", jobID), zap.Stringer("old_run_id", info.runID))
		info.cancel()
		<-info.done
		r.logger.Debug("old job execution finished", zap.Stringer("job_id", jobID), zap.Stringer("old_run_id", info.runID))
		delete(r.running, jobID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.running[jobID] = runInfo{cancel: cancel, runID: runID, done: done}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			close(done)
			r.mu.Lock()
			if info, ok := r.running[jobID]; ok && info.runID == runID {
				delete(r.running, jobID)
			}
			r.mu.Unlock()
		}()

		r.logger.Info("starting job execution",
			zap.Stringer("job_id", jobID), zap.Stringer("run_id", runID), zap.String("trigger", trigger))

		startTime := time.Now()
		historyID, err := r.history.Start(ctx, jobID, startTime)
		if err != nil {
			r.logger.Warn("failed to record run start", zap.Error(err))
		}

		report := r.engine.Run(ctx, job, r.progress)

		if err == nil {
			if finishErr := r.history.Finish(ctx, historyID, report); finishErr != nil {
				r.logger.Warn("failed to record run outcome", zap.Error(finishErr))
			}
		}

		if report.Status == model.StatusFailed {
			r.logger.Error("job execution failed", zap.Stringer("job_id", jobID), zap.Stringer("run_id", runID), zap.Strings("errors", report.Errors))
		} else {
			r.logger.Info("job execution finished", zap.Stringer("job_id", jobID), zap.Stringer("run_id", runID), zap.String("status", string(report.Status)))
		}
	}()
	return nil
}

// StopJob cancels a running job and waits for it to finish.
func (r *Runner) StopJob(jobID uuid.UUID) error {
	r.mu.Lock()
	info, ok := r.running[jobID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.logger.Info("stopping job", zap.Stringer("job_id", jobID))
	info.cancel()
	<-info.done
	r.mu.Lock()
	if cur, ok := r.running[jobID]; ok && cur.runID == info.runID {
		delete(r.running, jobID)
	}
	r.mu.Unlock()
	return nil
}

// IsRunning reports whether jobID currently has an in-flight run.
func (r *Runner) IsRunning(jobID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

var _ ports.Runner = (*Runner)(nil)
