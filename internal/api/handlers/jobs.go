// Package handlers implements the REST endpoints wrapping the core
// engine, runner, job store, history, conflict, and scheduler ports.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/cloudsync/enginecore/internal/core/conflict"
	"github.com/cloudsync/enginecore/internal/core/errs"
	"github.com/cloudsync/enginecore/internal/core/filecache"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/cloudsync/enginecore/internal/core/runner"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/cloudsync/enginecore/internal/core/transferstate"
	"github.com/cloudsync/enginecore/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func log() *zap.Logger {
	return logger.Named("api.handlers")
}

// errorStatus maps a domain sentinel error to the HTTP status a REST
// client should see.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidInput), errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrAlreadyExists), errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	log().Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

// createJobRequest is the JSON body accepted by CreateJob and UpdateJob.
type createJobRequest struct {
	Name      string              `json:"name" binding:"required"`
	SourceCfg model.StorageConfig `json:"sourceConfig" binding:"required"`
	DestCfg   model.StorageConfig `json:"destConfig" binding:"required"`
	Mode      model.SyncMode      `json:"mode" binding:"required"`
	Schedule  string              `json:"schedule"`
	Enabled   *bool               `json:"enabled"`
}

// ListJobs handles GET /jobs.
func ListJobs(jobs ports.JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := jobs.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GetJob handles GET /jobs/:id.
func GetJob(jobs ports.JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		job, err := jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// CreateJob handles POST /jobs.
func CreateJob(jobs ports.JobStore, scheduler ports.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := utils.ValidateCronSchedule(req.Schedule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule: " + err.Error()})
			return
		}

		job := model.SyncJob{
			Name:      req.Name,
			SourceCfg: req.SourceCfg,
			DestCfg:   req.DestCfg,
			Mode:      req.Mode,
			Schedule:  req.Schedule,
			Enabled:   req.Enabled == nil || *req.Enabled,
		}

		created, err := jobs.Create(c.Request.Context(), job)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := scheduler.AddJob(created); err != nil {
			log().Warn("failed to schedule new job", zap.String("job_id", created.ID.String()), zap.Error(err))
		}
		c.JSON(http.StatusCreated, created)
	}
}

// UpdateJob handles PUT /jobs/:id.
func UpdateJob(jobs ports.JobStore, scheduler ports.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		existing, err := jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		var req createJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := utils.ValidateCronSchedule(req.Schedule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule: " + err.Error()})
			return
		}

		existing.Name = req.Name
		existing.SourceCfg = req.SourceCfg
		existing.DestCfg = req.DestCfg
		existing.Mode = req.Mode
		existing.Schedule = req.Schedule
		if req.Enabled != nil {
			existing.Enabled = *req.Enabled
		}

		if err := jobs.Update(c.Request.Context(), *existing); err != nil {
			respondError(c, err)
			return
		}
		if err := scheduler.AddJob(*existing); err != nil {
			log().Warn("failed to reschedule updated job", zap.String("job_id", existing.ID.String()), zap.Error(err))
		}
		c.JSON(http.StatusOK, existing)
	}
}

// DeleteJob handles DELETE /jobs/:id.
func DeleteJob(jobs ports.JobStore, runner ports.Runner, scheduler ports.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		_ = runner.StopJob(id)
		_ = scheduler.RemoveJob(id)
		if err := jobs.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// startSyncRequest is the optional JSON body accepted by StartSync. A path
// absent from ConflictResolutions falls back to the engine recording a fresh
// conflict rather than resolving it automatically.
type startSyncRequest struct {
	ConflictResolutions map[string]model.ConflictResolution `json:"conflictResolutions"`
}

// StartSync handles POST /jobs/:id/sync, triggering a manual run. The
// request body is optional; when present, its conflictResolutions map is
// applied for this run only and is never persisted with the job.
func StartSync(jobs ports.JobStore, jobRunner ports.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		job, err := jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		var req startSyncRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		job.ConflictResolutions = req.ConflictResolutions

		if err := jobRunner.StartJob(*job, runner.TriggerManual); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

// CancelSync handles POST /jobs/:id/cancel.
func CancelSync(jobRunner ports.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		if err := jobRunner.StopJob(id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}

// JobStatus handles GET /jobs/:id/status.
func JobStatus(jobRunner ports.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"running": jobRunner.IsRunning(id)})
	}
}

// JobHistory handles GET /jobs/:id/history.
func JobHistory(history ports.HistorySink) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		rows, err := history.History(c.Request.Context(), id, 50)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// AnalyzeJob handles POST /jobs/:id/analyze, a dry run that reports what a
// sync would do without touching the destination.
func AnalyzeJob(jobs ports.JobStore, engine ports.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		job, err := jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		diff, err := engine.Analyze(c.Request.Context(), *job)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, diff)
	}
}

// PendingConflicts handles GET /jobs/:id/conflicts.
func PendingConflicts(conflicts ports.ConflictRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		records, err := conflicts.PendingConflicts(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

type resolveConflictsRequest struct {
	Resolutions map[int64]model.ConflictResolution `json:"resolutions" binding:"required"`
}

// ResolveConflicts handles POST /jobs/:id/conflicts/resolve. Besides
// marking each conflict ID resolved in the registry, it moves the actual
// file content per the requested resolution (keepSource/keepDest/
// keepBoth) by looking up each ID's path via PendingConflicts and running
// it through a conflict.Executor built from the job's own storage
// backends.
func ResolveConflicts(jobs ports.JobStore, conflicts ports.ConflictRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}

		var req resolveConflictsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		job, err := jobs.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		pending, err := conflicts.PendingConflicts(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		pathByID := make(map[int64]string, len(pending))
		for _, rec := range pending {
			pathByID[rec.ID] = rec.FilePath
		}

		if len(req.Resolutions) > 0 {
			source, err := storage.New(ctx, job.SourceCfg)
			if err != nil {
				respondError(c, err)
				return
			}
			dest, err := storage.New(ctx, job.DestCfg)
			if err != nil {
				respondError(c, err)
				return
			}
			executor := conflict.NewExecutor(source, dest)

			now := time.Now()
			for convID, resolution := range req.Resolutions {
				path, known := pathByID[convID]
				if !known {
					continue
				}
				if err := executor.Execute(ctx, path, resolution, now); err != nil {
					respondError(c, err)
					return
				}
			}
		}

		if err := conflicts.ResolveMany(ctx, req.Resolutions); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PendingTransfers handles GET /jobs/:id/transfers, returning in-flight or
// interrupted streamed transfers a resumed run can pick up.
func PendingTransfers(transfers *transferstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseJobID(c)
		if !ok {
			return
		}
		rows, err := transfers.InProgress(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// ClearCache handles POST /cache/clear, wiping every job's cached file
// list regardless of job ID.
func ClearCache(cache *filecache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		cache.ClearAll()
		c.Status(http.StatusNoContent)
	}
}

// Dependencies groups the ports Register needs to build every handler.
type Dependencies struct {
	JobStore  ports.JobStore
	Runner    ports.Runner
	Engine    ports.SyncEngine
	History   ports.HistorySink
	Conflicts ports.ConflictRegistry
	Scheduler ports.Scheduler
	Transfers *transferstate.Store
	Cache     *filecache.Cache
}

// Register attaches every job-related REST endpoint to group.
func Register(group *gin.RouterGroup, deps Dependencies) {
	jobs := group.Group("/jobs")
	jobs.GET("", ListJobs(deps.JobStore))
	jobs.POST("", CreateJob(deps.JobStore, deps.Scheduler))
	jobs.GET("/:id", GetJob(deps.JobStore))
	jobs.PUT("/:id", UpdateJob(deps.JobStore, deps.Scheduler))
	jobs.DELETE("/:id", DeleteJob(deps.JobStore, deps.Runner, deps.Scheduler))

	jobs.POST("/:id/sync", StartSync(deps.JobStore, deps.Runner))
	jobs.POST("/:id/cancel", CancelSync(deps.Runner))
	jobs.GET("/:id/status", JobStatus(deps.Runner))
	jobs.GET("/:id/history", JobHistory(deps.History))
	jobs.POST("/:id/analyze", AnalyzeJob(deps.JobStore, deps.Engine))
	jobs.GET("/:id/conflicts", PendingConflicts(deps.Conflicts))
	jobs.POST("/:id/conflicts/resolve", ResolveConflicts(deps.JobStore, deps.Conflicts))
	jobs.GET("/:id/transfers", PendingTransfers(deps.Transfers))

	group.POST("/cache/clear", ClearCache(deps.Cache))
}
