package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger(logger.EnvironmentDevelopment, logger.LogLevelDebug, nil, logger.FileConfig{})
}

// fakeEngine is a ports.SyncEngine whose Run behavior is controlled per
// test: it blocks until either its context is cancelled or a caller-
// supplied release channel is closed, then returns a fixed status.
type fakeEngine struct {
	mu       sync.Mutex
	release  chan struct{}
	status   model.RunStatus
	runCount int
	lastJob  model.SyncJob
}

func newFakeEngine(status model.RunStatus) *fakeEngine {
	return &fakeEngine{release: make(chan struct{}), status: status}
}

func (f *fakeEngine) Run(ctx context.Context, job model.SyncJob, progress ports.ProgressSink) model.SyncReport {
	f.mu.Lock()
	f.runCount++
	f.lastJob = job
	f.mu.Unlock()

	status := f.status
	select {
	case <-ctx.Done():
		status = model.StatusCancelled
	case <-f.release:
	}

	return model.SyncReport{
		RunID:     uuid.New(),
		JobID:     job.ID,
		Status:    status,
		StartTime: time.Now(),
		EndTime:   time.Now(),
	}
}

func (f *fakeEngine) Cancel() {}

func (f *fakeEngine) Analyze(ctx context.Context, job model.SyncJob) (model.DiffResult, error) {
	return model.DiffResult{JobID: job.ID}, nil
}

func (f *fakeEngine) finish() { close(f.release) }

func (f *fakeEngine) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runCount
}

// fakeHistory is a ports.HistorySink recording Start/Finish calls.
type fakeHistory struct {
	mu       sync.Mutex
	nextID   int64
	started  []uuid.UUID
	finished map[int64]model.SyncReport
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{finished: make(map[int64]model.SyncReport)}
}

func (h *fakeHistory) Start(ctx context.Context, jobID uuid.UUID, startTime time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.started = append(h.started, jobID)
	return h.nextID, nil
}

func (h *fakeHistory) Finish(ctx context.Context, id int64, report model.SyncReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished[id] = report
	return nil
}

func (h *fakeHistory) History(ctx context.Context, jobID uuid.UUID, limit int) ([]model.HistoryRow, error) {
	return nil, nil
}

func (h *fakeHistory) startCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.started)
}

func (h *fakeHistory) finishCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.finished)
}

var (
	_ ports.SyncEngine  = (*fakeEngine)(nil)
	_ ports.HistorySink = (*fakeHistory)(nil)
)

func testJob() model.SyncJob {
	return model.SyncJob{ID: uuid.New(), Name: "test-job", Mode: model.ModeMirror}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartJob_RunsAsynchronouslyAndRecordsHistory(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)
	job := testJob()

	require.NoError(t, r.StartJob(job, TriggerManual))

	waitFor(t, time.Second, func() bool { return engine.runs() == 1 })
	assert.True(t, r.IsRunning(job.ID))

	engine.finish()

	waitFor(t, time.Second, func() bool { return !r.IsRunning(job.ID) })
	assert.Equal(t, 1, history.startCount())
	assert.Equal(t, 1, history.finishCount())
}

func TestStartJob_ManualTriggerCancelsAndWaitsForPriorRun(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)
	job := testJob()

	require.NoError(t, r.StartJob(job, TriggerManual))
	waitFor(t, time.Second, func() bool { return engine.runs() == 1 })

	// The first run never finishes on its own (f.release stays open); a
	// second manual StartJob must cancel it and wait before starting a
	// fresh run.
	done := make(chan struct{})
	go func() {
		require.NoError(t, r.StartJob(job, TriggerManual))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StartJob did not return after cancelling the prior run")
	}

	waitFor(t, time.Second, func() bool { return engine.runs() == 2 })
	engine.finish()
	waitFor(t, time.Second, func() bool { return !r.IsRunning(job.ID) })
}

func TestStartJob_RealtimeTriggerSkipsIfAlreadyRunning(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)
	job := testJob()

	require.NoError(t, r.StartJob(job, TriggerManual))
	waitFor(t, time.Second, func() bool { return engine.runs() == 1 })

	require.NoError(t, r.StartJob(job, TriggerRealtime))

	// No second run should have been started, and the job must still be
	// running (the realtime trigger must not cancel it).
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, engine.runs())
	assert.True(t, r.IsRunning(job.ID))

	engine.finish()
	waitFor(t, time.Second, func() bool { return !r.IsRunning(job.ID) })
}

func TestStopJob_CancelsAndWaits(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)
	job := testJob()

	require.NoError(t, r.StartJob(job, TriggerManual))
	waitFor(t, time.Second, func() bool { return engine.runs() == 1 })

	require.NoError(t, r.StopJob(job.ID))
	assert.False(t, r.IsRunning(job.ID))
	assert.Equal(t, 1, history.finishCount())
}

func TestStopJob_UnknownJobIsNoop(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)

	assert.NoError(t, r.StopJob(uuid.New()))
}

func TestIsRunning_FalseWhenNeverStarted(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)

	assert.False(t, r.IsRunning(uuid.New()))
}

func TestStop_CancelsAndWaitsForEveryRunningJob(t *testing.T) {
	engine := newFakeEngine(model.StatusCompleted)
	history := newFakeHistory()
	r := NewRunner(engine, history, nil)

	jobA := testJob()
	jobB := testJob()
	require.NoError(t, r.StartJob(jobA, TriggerManual))
	require.NoError(t, r.StartJob(jobB, TriggerManual))

	waitFor(t, time.Second, func() bool { return engine.runs() == 2 })

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling all running jobs")
	}

	assert.False(t, r.IsRunning(jobA.ID))
	assert.False(t, r.IsRunning(jobB.ID))
}
