package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudsync/enginecore/internal/core/comparator"
	"github.com/cloudsync/enginecore/internal/core/conflict"
	"github.com/cloudsync/enginecore/internal/core/errs"
	"github.com/cloudsync/enginecore/internal/core/filecache"
	"github.com/cloudsync/enginecore/internal/core/filestate"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/cloudsync/enginecore/internal/core/scanner"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/cloudsync/enginecore/internal/core/transferstate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressSink is an alias for the port interface the rest of the core
// depends on, so callers outside this package don't need to import both.
type ProgressSink = ports.ProgressSink

// ProgressSinkFunc adapts a plain function to ProgressSink.
type ProgressSinkFunc = ports.ProgressSinkFunc

// Engine runs one job's sync logic against whatever Storage backends its
// StorageConfig resolves to. One Engine instance is reused across runs of
// the same or different jobs; all mutable per-run state lives on the
// stack of Run.
type Engine struct {
	cfg Config

	fileStates *filestate.Store
	conflicts  *conflict.Registry
	cache      *filecache.Cache
	transfers  *transferstate.Store

	log *zap.Logger

	cancelled atomic.Bool
}

// New builds an Engine with DefaultConfig.
func New(fileStates *filestate.Store, conflicts *conflict.Registry, cache *filecache.Cache, transfers *transferstate.Store) *Engine {
	return WithConfig(fileStates, conflicts, cache, transfers, DefaultConfig())
}

// WithConfig builds an Engine with an explicit Config.
func WithConfig(fileStates *filestate.Store, conflicts *conflict.Registry, cache *filecache.Cache, transfers *transferstate.Store, cfg Config) *Engine {
	return &Engine{
		cfg:        cfg.clamped(),
		fileStates: fileStates,
		conflicts:  conflicts,
		cache:      cache,
		transfers:  transfers,
		log:        logger.Named("core.engine"),
	}
}

// Cancel requests that every Run currently in flight on this Engine stop
// at its next cancellation check point. Prefer cancelling a specific
// run's context where one is available (e.g. via Runner.StopJob); Cancel
// is for stopping everything this Engine is doing at once, such as
// during process shutdown.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// isCancelled reports whether run should stop: either ctx was cancelled
// (the normal per-run path) or Cancel was called on this Engine instance
// (a process-wide stop). Checking both lets one Engine safely execute
// several jobs' runs concurrently under independent contexts.
func (e *Engine) isCancelled(ctx context.Context) bool {
	return ctx.Err() != nil || e.cancelled.Load()
}

// Run executes job end to end: connect, scan, compare, apply incremental
// skips, execute actions, and return a SyncReport. It never returns an
// error for a failed run — failures are reported via SyncReport.Status
// and SyncReport.Errors, matching the original engine's contract that a
// run always produces a persistable report.
func (e *Engine) Run(ctx context.Context, job model.SyncJob, progress ProgressSink) model.SyncReport {
	runID := uuid.New()
	startTime := time.Now()
	e.cancelled.Store(false)

	e.log.Info("starting sync run", zap.String("job_id", job.ID.String()), zap.String("job_name", job.Name), zap.String("run_id", runID.String()))

	e.publish(progress, model.SyncProgress{JobID: job.ID, RunID: runID, Status: model.StatusScanning})

	sourceStorage, err := storage.New(ctx, job.SourceCfg)
	if err != nil {
		return e.failedReport(job.ID, runID, startTime, fmt.Sprintf("connect source: %v", err))
	}
	destStorage, err := storage.New(ctx, job.DestCfg)
	if err != nil {
		return e.failedReport(job.ID, runID, startTime, fmt.Sprintf("connect dest: %v", err))
	}

	if err := e.ensureDestAccessible(ctx, destStorage); err != nil {
		return e.failedReport(job.ID, runID, startTime, err.Error())
	}

	if e.isCancelled(ctx) {
		return e.cancelledReport(job.ID, runID, startTime)
	}

	sc, err := scanner.New(e.cfg.ScanConfig)
	if err != nil {
		return e.failedReport(job.ID, runID, startTime, fmt.Sprintf("build scanner: %v", err))
	}

	sourceTree, err := e.scanSource(ctx, sc, job, sourceStorage)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return e.cancelledReport(job.ID, runID, startTime)
		}
		return e.failedReport(job.ID, runID, startTime, fmt.Sprintf("scan source: %v", err))
	}

	if e.isCancelled(ctx) {
		return e.cancelledReport(job.ID, runID, startTime)
	}

	destTree, err := e.scanDest(ctx, sc, job, destStorage)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return e.cancelledReport(job.ID, runID, startTime)
		}
		return e.failedReport(job.ID, runID, startTime, fmt.Sprintf("scan dest: %v", err))
	}

	filesScanned := len(sourceTree) + len(destTree)
	e.log.Debug("scan complete", zap.Int("source_files", len(sourceTree)), zap.Int("dest_files", len(destTree)))

	if e.isCancelled(ctx) {
		return e.cancelledReport(job.ID, runID, startTime)
	}

	e.publish(progress, model.SyncProgress{JobID: job.ID, RunID: runID, Status: model.StatusComparing, FilesCompleted: filesScanned})

	cmp := comparator.WithConfig(comparatorConfig(e.cfg))
	actions := cmp.CompareTrees(sourceTree, destTree, job.Mode)

	savedStates, err := e.fileStates.GetJobStates(ctx, job.ID)
	if err != nil {
		e.log.Warn("failed to load saved file states, continuing without incremental skip", zap.Error(err))
		savedStates = map[string]model.FileState{}
	}
	actions = e.applyHashSkip(ctx, sourceStorage, destTree, savedStates, actions)

	summary := comparator.Summarize(actions)
	filesToSync := summary.TotalFiles()

	e.log.Debug("compare complete",
		zap.Int("copy", summary.CopyCount+summary.ReverseCopyCount),
		zap.Int("delete", summary.DeleteCount),
		zap.Int("skip", summary.SkipCount),
		zap.Int("conflict", summary.ConflictCount))

	if e.isCancelled(ctx) {
		return e.cancelledReport(job.ID, runID, startTime)
	}

	e.publish(progress, model.SyncProgress{
		JobID: job.ID, RunID: runID, Status: model.StatusSyncing,
		FilesToSync: filesToSync, FilesSkipped: summary.SkipCount,
	})

	result := e.executeActions(ctx, job, runID, sourceStorage, destStorage, actions, summary, progress)

	status := model.StatusCompleted
	switch {
	case e.isCancelled(ctx):
		status = model.StatusCancelled
	case result.filesFailed > 0:
		status = model.StatusFailed
	}

	if status != model.StatusCancelled && (result.filesCopied > 0 || result.filesDeleted > 0) {
		if isRemoteBackend(job.DestCfg.Type) || isRemoteBackend(job.SourceCfg.Type) {
			e.cache.Clear(job.ID.String())
		}
	}

	report := model.SyncReport{
		RunID:            runID,
		JobID:            job.ID,
		Status:           status,
		FilesScanned:     filesScanned,
		FilesCopied:      result.filesCopied,
		FilesDeleted:     result.filesDeleted,
		FilesSkipped:     summary.SkipCount,
		FilesFailed:      result.filesFailed,
		BytesTransferred: result.bytesTransferred,
		Errors:           result.errors,
		StartTime:        startTime,
		EndTime:          time.Now(),
	}

	e.publish(progress, model.SyncProgress{
		JobID: job.ID, RunID: runID, Status: status,
		FilesCompleted: result.filesCopied + result.filesDeleted, FilesFailed: result.filesFailed,
		FilesToSync: filesToSync, BytesTransferred: result.bytesTransferred,
	})

	e.log.Info("sync run finished",
		zap.String("job_id", job.ID.String()), zap.String("status", string(status)),
		zap.Int("copied", result.filesCopied), zap.Int("deleted", result.filesDeleted), zap.Int("failed", result.filesFailed))

	return report
}

// Analyze runs the scan-and-compare portion of Run without executing any
// action, returning a summary of what a real run would do. Unlike Run, it
// reports failures as an error since there is no persistable report to
// fall back on for a dry-run query.
func (e *Engine) Analyze(ctx context.Context, job model.SyncJob) (model.DiffResult, error) {
	sourceStorage, err := storage.New(ctx, job.SourceCfg)
	if err != nil {
		return model.DiffResult{}, fmt.Errorf("connect source: %w", err)
	}
	destStorage, err := storage.New(ctx, job.DestCfg)
	if err != nil {
		return model.DiffResult{}, fmt.Errorf("connect dest: %w", err)
	}

	if err := e.ensureDestAccessible(ctx, destStorage); err != nil {
		return model.DiffResult{}, err
	}

	sc, err := scanner.New(e.cfg.ScanConfig)
	if err != nil {
		return model.DiffResult{}, fmt.Errorf("build scanner: %w", err)
	}

	var sourceCachedAt *int64
	if isRemoteBackend(job.SourceCfg.Type) {
		sourceCfgJSON, _ := json.Marshal(job.SourceCfg)
		if cached, ok := e.cache.Load(job.ID.String(), filecache.SideSource, string(sourceCfgJSON)); ok {
			t := cached.CachedAt
			sourceCachedAt = &t
		}
	}

	sourceTree, err := e.scanSource(ctx, sc, job, sourceStorage)
	if err != nil {
		return model.DiffResult{}, fmt.Errorf("scan source: %w", err)
	}

	var destCachedAt *int64
	if isRemoteBackend(job.DestCfg.Type) {
		destCfgJSON, _ := json.Marshal(job.DestCfg)
		if cached, ok := e.cache.Load(job.ID.String(), filecache.SideDest, string(destCfgJSON)); ok {
			t := cached.CachedAt
			destCachedAt = &t
		}
	}

	destTree, err := e.scanDest(ctx, sc, job, destStorage)
	if err != nil {
		return model.DiffResult{}, fmt.Errorf("scan dest: %w", err)
	}

	cmp := comparator.WithConfig(comparatorConfig(e.cfg))
	actions := cmp.CompareTrees(sourceTree, destTree, job.Mode)

	savedStates, err := e.fileStates.GetJobStates(ctx, job.ID)
	if err != nil {
		e.log.Warn("failed to load saved file states, continuing without incremental skip", zap.Error(err))
		savedStates = map[string]model.FileState{}
	}
	actions = e.applyHashSkip(ctx, sourceStorage, destTree, savedStates, actions)
	summary := comparator.Summarize(actions)

	return model.DiffResult{
		JobID:            job.ID,
		SourceCachedAt:   sourceCachedAt,
		DestCachedAt:     destCachedAt,
		CopyCount:        summary.CopyCount,
		CopyBytes:        summary.CopyBytes,
		ReverseCopyCount: summary.ReverseCopyCount,
		ReverseCopyBytes: summary.ReverseCopyBytes,
		DeleteCount:      summary.DeleteCount,
		SkipCount:        summary.SkipCount,
		ConflictCount:    summary.ConflictCount,
	}, nil
}

func (e *Engine) publish(sink ProgressSink, p model.SyncProgress) {
	if sink == nil {
		return
	}
	sink.Publish(p)
}

// ensureDestAccessible probes the destination with a one-level list and,
// on a not-found-shaped error, attempts to create the root once before
// re-probing.
func (e *Engine) ensureDestAccessible(ctx context.Context, dest storage.Storage) error {
	_, err := dest.List(ctx, "")
	if err == nil {
		return nil
	}
	if !looksLikeMissingDir(err) {
		e.log.Warn("error probing destination, continuing anyway", zap.Error(err))
		return nil
	}
	if !e.cfg.AutoCreateDir {
		return fmt.Errorf("destination directory does not exist or is inaccessible")
	}
	e.log.Debug("destination directory missing, attempting to create root")
	if createErr := dest.CreateDir(ctx, "/"); createErr != nil {
		e.log.Debug("create root dir failed", zap.Error(createErr))
	}
	if _, err := dest.List(ctx, ""); err != nil {
		return fmt.Errorf("destination directory does not exist and could not be created: %w", err)
	}
	return nil
}

func looksLikeMissingDir(err error) bool {
	return errs.Is(err, errs.ErrNotFound) || errs.Is(err, errs.ErrConflict)
}

// isRemoteBackend reports whether a backend type benefits from file-list
// caching: local scans are cheap enough not to bother, remote ones (S3,
// WebDAV) pay a network round trip per List call.
func isRemoteBackend(t model.BackendType) bool {
	return t == model.BackendS3 || t == model.BackendWebDav
}

// scanSource scans the source tree, consulting the file-list cache for
// remote backends, mirroring scanDest's cache symmetry.
func (e *Engine) scanSource(ctx context.Context, sc *scanner.Scanner, job model.SyncJob, source storage.Storage) (map[string]storage.FileInfo, error) {
	if !isRemoteBackend(job.SourceCfg.Type) {
		return sc.Scan(ctx, source, "", &e.cancelled)
	}

	sourceCfgJSON, _ := json.Marshal(job.SourceCfg)
	if cached, ok := e.cache.Load(job.ID.String(), filecache.SideSource, string(sourceCfgJSON)); ok {
		e.log.Debug("using cached source file list", zap.Int("count", len(cached.Files)))
		return cached.Files, nil
	}

	tree, err := sc.Scan(ctx, source, "", &e.cancelled)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Save(job.ID.String(), filecache.SideSource, string(sourceCfgJSON), tree); err != nil {
		e.log.Warn("failed to save source file list cache", zap.Error(err))
	}
	return tree, nil
}

// scanDest scans the destination tree, consulting the file-list cache
// for remote backends (local scans are cheap enough not to bother).
func (e *Engine) scanDest(ctx context.Context, sc *scanner.Scanner, job model.SyncJob, dest storage.Storage) (map[string]storage.FileInfo, error) {
	if !isRemoteBackend(job.DestCfg.Type) {
		return sc.Scan(ctx, dest, "", &e.cancelled)
	}

	destCfgJSON, _ := json.Marshal(job.DestCfg)
	if cached, ok := e.cache.Load(job.ID.String(), filecache.SideDest, string(destCfgJSON)); ok {
		e.log.Debug("using cached dest file list", zap.Int("count", len(cached.Files)))
		return cached.Files, nil
	}

	tree, err := sc.Scan(ctx, dest, "", &e.cancelled)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Save(job.ID.String(), filecache.SideDest, string(destCfgJSON), tree); err != nil {
		e.log.Warn("failed to save dest file list cache", zap.Error(err))
	}
	return tree, nil
}

// applyHashSkip reads only the files that are both size-matched against a
// saved state and present at the destination, recomputes their quick
// hash, and downgrades unchanged Copy actions to Skip. A Copy whose
// destination is absent is never hash-skipped, even if a stale state
// happens to match — the file still needs to be copied.
func (e *Engine) applyHashSkip(ctx context.Context, source storage.Storage, destTree map[string]storage.FileInfo, saved map[string]model.FileState, actions []comparator.SyncAction) []comparator.SyncAction {
	currentHashes := make(map[string]string)

	for _, action := range actions {
		if action.Kind != comparator.ActionCopy || action.Reverse {
			continue
		}
		if _, present := destTree[action.SourcePath]; !present {
			continue
		}
		state, ok := saved[action.SourcePath]
		if !ok || state.Checksum == "" || state.Size != action.Size {
			continue
		}
		data, err := source.Read(ctx, action.SourcePath)
		if err != nil {
			e.log.Debug("failed to read file for hash-skip check, will copy", zap.String("path", action.SourcePath), zap.Error(err))
			continue
		}
		currentHashes[action.SourcePath] = filestate.QuickHash(data)
	}

	return filestate.ApplyIncrementalSkips(actions, destTree, saved, currentHashes)
}

func (e *Engine) failedReport(jobID, runID uuid.UUID, startTime time.Time, msg string) model.SyncReport {
	e.log.Error("sync run failed", zap.String("job_id", jobID.String()), zap.String("error", msg))
	return model.SyncReport{
		RunID: runID, JobID: jobID, Status: model.StatusFailed,
		Errors: []string{msg}, StartTime: startTime, EndTime: time.Now(),
	}
}

func (e *Engine) cancelledReport(jobID, runID uuid.UUID, startTime time.Time) model.SyncReport {
	e.log.Info("sync run cancelled", zap.String("job_id", jobID.String()))
	return model.SyncReport{
		RunID: runID, JobID: jobID, Status: model.StatusCancelled,
		Errors: []string{"run cancelled"}, StartTime: startTime, EndTime: time.Now(),
	}
}

func comparatorConfig(cfg Config) comparator.CompareConfig {
	base := comparator.DefaultCompareConfig()
	base.UseChecksum = cfg.UseChecksum
	return base
}

// executionResult aggregates the outcome of running every non-Skip
// action through the worker pool.
type executionResult struct {
	filesCopied      int
	filesDeleted     int
	filesFailed      int
	bytesTransferred int64
	errors           []string
}

type transferStats struct {
	filesCompleted atomic.Int64
	filesFailed    atomic.Int64
	bytesTotal     atomic.Int64
}

// executeActions runs every executable action (everything but Skip)
// through a semaphore-bounded worker pool, retries failures with
// exponential backoff, and persists successful Copy file states in a
// single batch once the pool drains.
func (e *Engine) executeActions(
	ctx context.Context,
	job model.SyncJob,
	runID uuid.UUID,
	source, dest storage.Storage,
	actions []comparator.SyncAction,
	summary comparator.ActionSummary,
	progress ProgressSink,
) executionResult {
	executable := make([]comparator.SyncAction, 0, len(actions))
	for _, a := range actions {
		if a.Kind != comparator.ActionSkip {
			executable = append(executable, a)
		}
	}

	filesToSync := summary.TotalFiles()
	bytesTotal := summary.TotalTransferBytes()

	sem := make(chan struct{}, e.cfg.MaxConcurrentTransfers)
	var stats transferStats
	var mu sync.Mutex
	var errList []string
	var newStates []model.FileState
	var wg sync.WaitGroup

	tickerDone := make(chan struct{})
	go e.runProgressTicker(job.ID, runID, filesToSync, bytesTotal, &stats, tickerDone, progress)

	for _, action := range executable {
		if e.isCancelled(ctx) {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(action comparator.SyncAction) {
			defer wg.Done()
			defer func() { <-sem }()

			bytes, state, err := e.executeWithRetry(ctx, job, action, source, dest, &stats)
			if err != nil {
				stats.filesFailed.Add(1)
				mu.Lock()
				errList = append(errList, err.Error())
				mu.Unlock()
				return
			}
			stats.filesCompleted.Add(1)
			stats.bytesTotal.Add(bytes)
			if state != nil {
				state.JobID = job.ID
				mu.Lock()
				newStates = append(newStates, *state)
				mu.Unlock()
			}
		}(action)
	}

	wg.Wait()
	close(tickerDone)

	if len(newStates) > 0 {
		if err := e.fileStates.BatchUpsert(ctx, newStates); err != nil {
			e.log.Warn("failed to persist file states after run", zap.Error(err))
		} else {
			e.log.Debug("persisted file states", zap.Int("count", len(newStates)))
		}
	}

	completed := int(stats.filesCompleted.Load())
	failed := int(stats.filesFailed.Load())
	transferred := stats.bytesTotal.Load()

	copyCount := summary.CopyCount + summary.ReverseCopyCount
	filesCopied := completed
	if filesCopied > copyCount {
		filesCopied = copyCount
	}
	filesDeleted := completed - filesCopied
	if filesDeleted < 0 {
		filesDeleted = 0
	}

	return executionResult{
		filesCopied:      filesCopied,
		filesDeleted:     filesDeleted,
		filesFailed:      failed,
		bytesTransferred: transferred,
		errors:           errList,
	}
}

// runProgressTicker wakes every 500ms, computes an EMA throughput and a
// naive ETA from bytes remaining, and publishes a tick. It exits when
// done is closed or every file has completed.
func (e *Engine) runProgressTicker(jobID, runID uuid.UUID, filesToSync int, bytesTotal int64, stats *transferStats, done <-chan struct{}, progress ProgressSink) {
	const alpha = 0.3
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastBytes int64
	var ema float64

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			completed := stats.filesCompleted.Load()
			failed := stats.filesFailed.Load()
			bytes := stats.bytesTotal.Load()

			instBps := float64(bytes - lastBytes) / 0.5
			lastBytes = bytes
			if ema == 0 {
				ema = instBps
			} else {
				ema = alpha*instBps + (1-alpha)*ema
			}

			remaining := bytesTotal - bytes
			eta := 0.0
			if ema > 0 && remaining > 0 {
				eta = float64(remaining) / ema
			}

			e.publish(progress, model.SyncProgress{
				JobID: jobID, RunID: runID, Status: model.StatusSyncing,
				FilesCompleted: int(completed), FilesFailed: int(failed), FilesToSync: filesToSync,
				BytesTransferred: bytes, ThroughputBps: ema, ETASeconds: eta,
			})

			if completed+failed >= int64(filesToSync) {
				return
			}
		}
	}
}

// executeWithRetry runs action, retrying a failed attempt up to
// MaxRetries times with exponential backoff, and returns the bytes
// transferred plus the resulting FileState for a forward Copy (nil for
// reverse copies, deletes, and conflicts). Errors are not classified with
// errs.IsRetryable: every failure is retried except an unresolved
// conflict (errs.ErrConflict), which fails on the first attempt.
func (e *Engine) executeWithRetry(ctx context.Context, job model.SyncJob, action comparator.SyncAction, source, dest storage.Storage, stats *transferStats) (int64, *model.FileState, error) {
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if e.isCancelled(ctx) {
			return 0, nil, fmt.Errorf("%s: %w", actionPath(action), errs.ErrCancelled)
		}

		bytes, state, err := e.executeAction(ctx, job, action, source, dest, stats)
		if err == nil {
			return bytes, state, nil
		}
		lastErr = err
		if errs.Is(err, errs.ErrConflict) {
			break
		}

		if attempt < e.cfg.MaxRetries {
			delay := time.Duration(e.cfg.RetryBaseDelayMs) * time.Millisecond * time.Duration(1<<uint(attempt))
			e.log.Warn("action failed, retrying",
				zap.String("path", actionPath(action)), zap.Int("attempt", attempt+1), zap.Int("max_retries", e.cfg.MaxRetries),
				zap.Duration("delay", delay), zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			}
		}
	}

	e.log.Error("action failed permanently", zap.String("path", actionPath(action)), zap.Int("retries", e.cfg.MaxRetries), zap.Error(lastErr))
	return 0, nil, fmt.Errorf("%s: %w", actionPath(action), lastErr)
}

func actionPath(action comparator.SyncAction) string {
	switch action.Kind {
	case comparator.ActionCopy:
		return action.SourcePath
	case comparator.ActionDelete, comparator.ActionConflict, comparator.ActionSkip:
		return action.Path
	default:
		return ""
	}
}

// executeAction performs one SyncAction against the two backends. Copy
// streams through the stream threshold; everything else is a single
// small operation.
func (e *Engine) executeAction(ctx context.Context, job model.SyncJob, action comparator.SyncAction, source, dest storage.Storage, stats *transferStats) (int64, *model.FileState, error) {
	switch action.Kind {
	case comparator.ActionCopy:
		return e.executeCopy(ctx, job, action, source, dest, stats)
	case comparator.ActionDelete:
		target := source
		if action.FromDest {
			target = dest
		}
		if err := target.Delete(ctx, action.Path); err != nil {
			return 0, nil, err
		}
		return 0, nil, nil
	case comparator.ActionSkip:
		return 0, nil, nil
	case comparator.ActionConflict:
		return e.executeConflict(ctx, job, action, source, dest)
	default:
		return 0, nil, fmt.Errorf("unknown action kind %v", action.Kind)
	}
}

// executeConflict applies the job's preselected resolution for action.Path
// if one was supplied with this run's startSync request; otherwise it
// records the conflict in the registry and surfaces it as a (non-fatal)
// failed action, per the job's conflictResolutions contract.
func (e *Engine) executeConflict(ctx context.Context, job model.SyncJob, action comparator.SyncAction, source, dest storage.Storage) (int64, *model.FileState, error) {
	if override, ok := job.ConflictResolutions[action.Path]; ok {
		executor := conflict.NewExecutor(source, dest)
		if err := executor.Execute(ctx, action.Path, override, time.Now()); err != nil {
			return 0, nil, fmt.Errorf("resolve conflict %s: %w", action.Path, err)
		}
		e.log.Info("conflict resolved via job override",
			zap.String("path", action.Path), zap.String("resolution", string(override)))
		return conflictBytes(action), nil, nil
	}

	if e.conflicts != nil {
		srcSide := conflict.SideInfo(conflictSize(action.SourceInfo), conflictModTime(action.SourceInfo))
		if action.SourceInfo == nil {
			srcSide = nil
		}
		destSide := conflict.SideInfo(conflictSize(action.DestInfo), conflictModTime(action.DestInfo))
		if action.DestInfo == nil {
			destSide = nil
		}
		if _, err := e.conflicts.Record(ctx, job.ID, action.Path, action.ConflictKind, srcSide, destSide); err != nil {
			e.log.Warn("failed to record conflict", zap.String("path", action.Path), zap.Error(err))
		}
	}

	return 0, nil, fmt.Errorf("%w: %s", errs.ErrConflict, action.Path)
}

func conflictSize(info *storage.FileInfo) int64 {
	if info == nil {
		return 0
	}
	return info.Size
}

func conflictModTime(info *storage.FileInfo) int64 {
	if info == nil {
		return 0
	}
	return info.ModifiedTime
}

func conflictBytes(action comparator.SyncAction) int64 {
	if action.SourceInfo != nil {
		return action.SourceInfo.Size
	}
	if action.DestInfo != nil {
		return action.DestInfo.Size
	}
	return 0
}

func (e *Engine) executeCopy(ctx context.Context, job model.SyncJob, action comparator.SyncAction, source, dest storage.Storage, stats *transferStats) (int64, *model.FileState, error) {
	from, to := source, dest
	fromPath, toPath := action.SourcePath, action.DestPath
	if action.Reverse {
		from, to = dest, source
		fromPath, toPath = action.DestPath, action.SourcePath
	}

	if action.Size >= e.cfg.StreamThreshold {
		checksum, err := e.streamCopy(ctx, job, from, to, fromPath, toPath, action.Size, stats)
		if err != nil {
			return 0, nil, err
		}
		if action.Reverse {
			return 0, nil, nil
		}
		state := &model.FileState{
			FilePath:     action.SourcePath,
			Size:         action.Size,
			ModifiedTime: time.Now().Unix(),
			Checksum:     checksum,
			LastSyncTime: time.Now().Unix(),
		}
		return 0, state, nil
	}

	data, err := from.Read(ctx, fromPath)
	if err != nil {
		return 0, nil, err
	}
	if err := to.Write(ctx, toPath, data); err != nil {
		return 0, nil, err
	}

	if action.Reverse {
		return int64(len(data)), nil, nil
	}

	hash := filestate.QuickHash(data)
	state := &model.FileState{
		FilePath:     action.SourcePath,
		Size:         int64(len(data)),
		ModifiedTime: time.Now().Unix(),
		Checksum:     hash,
		LastSyncTime: time.Now().Unix(),
	}
	return int64(len(data)), state, nil
}

// streamCopy moves a large file in two phases: (a) it range-reads from
// while computing a running quick-hash, writing each chunk into a local
// temp file; (b) it reopens that temp file and streams it through to's
// WriteStream, counting bytes into stats in real time as WriteStream
// consumes them and, when resume tracking is enabled, checkpointing
// progress in the transfer-state store. The temp file is removed on
// every exit path, including mid-copy cancellation.
func (e *Engine) streamCopy(ctx context.Context, job model.SyncJob, from, to storage.Storage, fromPath, toPath string, size int64, stats *transferStats) (string, error) {
	tmp, err := os.CreateTemp("", "enginecore-stream-*")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", fromPath, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := filestate.NewStreamingHash(size)

	chunkSize := e.cfg.ChunkSize
	var offset int64
	for offset < size {
		if e.isCancelled(ctx) {
			tmp.Close()
			return "", fmt.Errorf("%s: %w", fromPath, errs.ErrCancelled)
		}

		length := chunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		data, readErr := from.ReadRange(ctx, fromPath, offset, length)
		if readErr != nil {
			tmp.Close()
			return "", fmt.Errorf("read range %s: %w", fromPath, readErr)
		}
		if len(data) == 0 {
			break
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return "", fmt.Errorf("write temp file for %s: %w", fromPath, err)
		}
		hasher.Write(offset, data)
		offset += int64(len(data))
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file for %s: %w", fromPath, err)
	}

	useResume := e.cfg.EnableResume && e.transfers != nil
	if useResume {
		if err := e.transfers.Start(ctx, job.ID, fromPath, size); err != nil {
			e.log.Warn("failed to record transfer start", zap.String("path", fromPath), zap.Error(err))
		}
	}

	in, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reopen temp file for %s: %w", fromPath, err)
	}
	defer in.Close()

	var transferred, lastReported int64
	counting := &countingReader{r: in, onRead: func(n int) {
		stats.bytesTotal.Add(int64(n))
		transferred += int64(n)
		if useResume && transferred-lastReported >= chunkSize {
			lastReported = transferred
			if err := e.transfers.UpdateProgress(ctx, job.ID, fromPath, transferred); err != nil {
				e.log.Debug("failed to update transfer progress", zap.String("path", fromPath), zap.Error(err))
			}
		}
	}}

	if err := to.WriteStream(ctx, toPath, counting, size); err != nil {
		if useResume {
			if ferr := e.transfers.Finish(ctx, job.ID, fromPath, model.TransferFailed); ferr != nil {
				e.log.Debug("failed to record transfer failure", zap.String("path", fromPath), zap.Error(ferr))
			}
		}
		return "", fmt.Errorf("write stream %s: %w", toPath, err)
	}

	if useResume {
		if err := e.transfers.Finish(ctx, job.ID, fromPath, model.TransferCompleted); err != nil {
			e.log.Debug("failed to record transfer completion", zap.String("path", fromPath), zap.Error(err))
		}
	}

	return hasher.Sum(), nil
}

var _ ports.SyncEngine = (*Engine)(nil)
