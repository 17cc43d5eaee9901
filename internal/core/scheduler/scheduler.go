// Package scheduler provides cron-based scheduling for sync jobs.
package scheduler

import (
	"context"
	"sync"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/cloudsync/enginecore/internal/core/runner"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives cron-triggered job runs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	jobs    ports.JobStore
	runner  ports.Runner
	logger  *zap.Logger
	mu      sync.Mutex
	jobMap  map[uuid.UUID]cron.EntryID
	running bool
}

// NewScheduler creates a new Scheduler instance.
func NewScheduler(jobs ports.JobStore, runner ports.Runner, opts ...cron.Option) *Scheduler {
	return &Scheduler{
		cron:   cron.New(opts...), // standard 5-field cron (minute, hour, day, month, weekday)
		jobs:   jobs,
		runner: runner,
		logger: logger.Named("core.scheduler"),
		jobMap: make(map[uuid.UUID]cron.EntryID),
	}
}

// Start starts the scheduler and loads every scheduled job from the store.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("scheduler is already running")
		return
	}
	s.logger.Info("starting scheduler")
	s.cron.Start()
	s.loadScheduledJobs()
	s.running = true
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn("scheduler is not running")
		return
	}
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
	s.running = false
}

func (s *Scheduler) loadScheduledJobs() {
	s.logger.Info("loading scheduled jobs from store")
	jobs, err := s.jobs.List(context.Background())
	if err != nil {
		s.logger.Error("failed to load jobs for scheduler", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if job.Enabled && job.Schedule != "" {
			if err := s.addEntry(job); err != nil {
				s.logger.Error("failed to add job to scheduler on load",
					zap.String("job_name", job.Name),
					zap.String("job_id", job.ID.String()),
					zap.String("schedule", job.Schedule),
					zap.Error(err),
				)
			}
		}
	}
	s.logger.Info("finished loading scheduled jobs", zap.Int("count", len(s.jobMap)))
}

// AddJob registers job's schedule with cron, replacing any existing entry
// for the same job ID. A job with an empty Schedule or Enabled=false is
// simply removed, since scheduling it would have no effect.
func (s *Scheduler) AddJob(job model.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !job.Enabled || job.Schedule == "" {
		s.removeEntry(job.ID)
		return nil
	}
	return s.addEntry(job)
}

// RemoveJob removes jobID's cron entry, if any.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeEntry(jobID)
	return nil
}

func (s *Scheduler) addEntry(job model.SyncJob) error {
	jobID := job.ID
	jobName := job.Name

	s.removeEntry(jobID) // remove the existing entry, if any, to pick up schedule changes

	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.logger.Info("running scheduled job", zap.String("job_name", jobName), zap.String("job_id", jobID.String()))

		// Reload the job to pick up any configuration changes made since
		// the entry was registered.
		current, err := s.jobs.Get(context.Background(), jobID)
		if err != nil {
			s.logger.Error("failed to load job for scheduled run", zap.String("job_id", jobID.String()), zap.Error(err))
			return
		}
		if current == nil {
			s.logger.Warn("scheduled job no longer exists, removing entry", zap.String("job_id", jobID.String()))
			s.mu.Lock()
			s.removeEntry(jobID)
			s.mu.Unlock()
			return
		}

		if err := s.runner.StartJob(*current, runner.TriggerScheduled); err != nil {
			s.logger.Error("failed to start scheduled job", zap.String("job_id", jobID.String()), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.jobMap[jobID] = entryID
	s.logger.Info("scheduled job added", zap.String("job_name", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

func (s *Scheduler) removeEntry(jobID uuid.UUID) {
	if entryID, ok := s.jobMap[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobMap, jobID)
		s.logger.Info("removed job from scheduler", zap.String("job_id", jobID.String()))
	}
}

var _ ports.Scheduler = (*Scheduler)(nil)
