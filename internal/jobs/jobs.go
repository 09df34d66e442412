// Package jobs implements the council pipeline's job manager: create
// a weekly run, track its progress, allow cancellation, and reap
// completed jobs past their TTL. It is grounded on
// internal/orchestrator.go's RWMutex-guarded state table, Start/Stop
// lifecycle, and snapshot-via-copy accessor pattern, with the
// teacher's internal/workers.Pool (kept, adapted) running each job's
// pipeline in the background instead of submitting per-tick tasks.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/metrics"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/internal/workers"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StageProgress records the current or completed state of one stage
// within a job, matching spec.md's job entity shape: a status,
// 0-100 percent-through-the-run figure, a human message, and (for a
// fan-out stage) a per-provider status breakdown.
type StageProgress struct {
	Stage        string
	Status       pipeline.ProgressStatus
	Percent      int
	Message      string
	SubProviders map[string]string
	Err          string
	StartedAt    time.Time
	EndedAt      time.Time
}

// Job is a snapshot of one weekly pipeline run's state. Manager
// methods never return a live pointer into the job table — every
// accessor returns a copy, matching TradingOrchestrator.GetActiveStrategies'
// copy-out pattern so a caller can never observe a torn read.
type Job struct {
	ID        string
	WeekID    council.WeekId
	Status    Status
	Progress  []StageProgress
	Err       string
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
}

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
}

// Manager owns the job table and the background pool that runs each
// job's pipeline.
type Manager struct {
	mu     sync.RWMutex
	logger *zap.Logger
	jobs   map[string]*jobEntry
	pool   *workers.Pool
	ttl    time.Duration

	buildPipeline func(weekID council.WeekId) *pipeline.Pipeline
}

// New returns a job Manager. buildPipeline constructs a fresh Pipeline
// (and its stages) for each job, so every run gets its own Context
// lineage and no state leaks between weeks.
func New(logger *zap.Logger, ttl time.Duration, buildPipeline func(weekID council.WeekId) *pipeline.Pipeline) *Manager {
	poolCfg := workers.DefaultPoolConfig("jobs")
	return &Manager{
		logger:        logger.Named("jobs"),
		jobs:          make(map[string]*jobEntry),
		pool:          workers.NewPool(logger.Named("jobs.pool"), poolCfg),
		ttl:           ttl,
		buildPipeline: buildPipeline,
	}
}

// Start boots the background worker pool. Call once before Create.
func (m *Manager) Start() { m.pool.Start() }

// Stop drains the worker pool, waiting up to its configured shutdown
// timeout for in-flight jobs to finish.
func (m *Manager) Stop() error { return m.pool.Stop() }

// PoolStats returns the background pool's current throughput and
// latency figures, surfaced over HTTP so an operator can tell a
// backed-up job queue from a slow LLM provider.
func (m *Manager) PoolStats() workers.PoolStats { return m.pool.Stats() }

// Create queues a new job for weekID and submits it to the background
// pool, returning immediately with the job's id.
func (m *Manager) Create(weekID council.WeekId) (string, error) {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	entry := &jobEntry{
		job: Job{
			ID:        id,
			WeekID:    weekID,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[id] = entry
	m.mu.Unlock()

	if err := m.pool.SubmitFunc(func() error {
		m.run(ctx, id)
		return nil
	}); err != nil {
		m.mu.Lock()
		entry.job.Status = StatusFailed
		entry.job.Err = err.Error()
		m.mu.Unlock()
		return "", &councilerr.PersistenceError{Op: "submit_job", Err: err}
	}

	return id, nil
}

func (m *Manager) run(ctx context.Context, id string) {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.job.Status = StatusRunning
	entry.job.StartedAt = time.Now().UTC()
	weekID := entry.job.WeekID
	m.mu.Unlock()

	pl := m.buildPipeline(weekID)
	pl.OnProgress(func(update pipeline.ProgressUpdate) {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := m.jobs[id]
		if !ok {
			return
		}

		if update.Status == pipeline.ProgressStarted {
			e.job.Progress = append(e.job.Progress, StageProgress{
				Stage:     update.Stage,
				Status:    update.Status,
				Percent:   update.Percent,
				Message:   update.Message,
				StartedAt: time.Now().UTC(),
			})
			return
		}

		for i := len(e.job.Progress) - 1; i >= 0; i-- {
			if e.job.Progress[i].Stage != update.Stage {
				continue
			}
			e.job.Progress[i].Status = update.Status
			e.job.Progress[i].Percent = update.Percent
			e.job.Progress[i].Message = update.Message
			e.job.Progress[i].SubProviders = update.SubProviders
			e.job.Progress[i].EndedAt = time.Now().UTC()
			if update.Err != nil {
				e.job.Progress[i].Err = update.Err.Error()
			}
			return
		}

		progress := StageProgress{Stage: update.Stage, Status: update.Status, Percent: update.Percent, Message: update.Message, EndedAt: time.Now().UTC()}
		if update.Err != nil {
			progress.Err = update.Err.Error()
		}
		e.job.Progress = append(e.job.Progress, progress)
	})

	_, err := pl.Run(ctx, pipeline.NewContext(weekID))

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return
	}
	e.job.EndedAt = time.Now().UTC()
	switch {
	case err == nil:
		e.job.Status = StatusSucceeded
	case ctx.Err() == context.Canceled:
		e.job.Status = StatusCancelled
	default:
		e.job.Status = StatusFailed
		e.job.Err = err.Error()
	}
	metrics.JobsTotal.WithLabelValues(string(e.job.Status)).Inc()
}

// Status returns a snapshot copy of the job's current state.
func (m *Manager) Status(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return copyJob(e.job), true
}

// Cancel requests cancellation of a running or queued job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if e.job.Status == StatusSucceeded || e.job.Status == StatusFailed || e.job.Status == StatusCancelled {
		return nil
	}
	e.cancel()
	return nil
}

// Reap removes every completed job older than the configured TTL.
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-m.ttl)
	removed := 0
	for id, e := range m.jobs {
		if e.job.Status == StatusQueued || e.job.Status == StatusRunning {
			continue
		}
		if e.job.EndedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

func copyJob(j Job) Job {
	out := j
	out.Progress = make([]StageProgress, len(j.Progress))
	copy(out.Progress, j.Progress)
	return out
}
