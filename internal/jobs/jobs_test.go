package jobs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

type noopStage struct {
	name  string
	delay time.Duration
}

func (s noopStage) Name() string            { return s.name }
func (s noopStage) Requires() []pipeline.Key { return nil }
func (s noopStage) Produces() []pipeline.Key { return nil }
func (s noopStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return pctx, ctx.Err()
		}
	}
	return pctx, nil
}

func testWeekID(t *testing.T) council.WeekId {
	t.Helper()
	d := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Wednesday {
		d = d.AddDate(0, 0, 1)
	}
	w, err := council.NewWeekId(d)
	if err != nil {
		t.Fatalf("failed to build week id: %v", err)
	}
	return w
}

func TestCreateAndAwaitSuccess(t *testing.T) {
	logger := zap.NewNop()
	mgr := New(logger, time.Hour, func(weekID council.WeekId) *pipeline.Pipeline {
		return pipeline.New(logger, nil, noopStage{name: "stage1"}, noopStage{name: "stage2"})
	})
	mgr.Start()
	defer mgr.Stop()

	id, err := mgr.Create(testWeekID(t))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var job Job
	for time.Now().Before(deadline) {
		j, ok := mgr.Status(id)
		if !ok {
			t.Fatal("expected job to exist")
		}
		job = j
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if job.Status != StatusSucceeded {
		t.Fatalf("expected job to succeed, got %s (%s)", job.Status, job.Err)
	}
	if len(job.Progress) != 2 {
		t.Errorf("expected 2 progress entries, got %d", len(job.Progress))
	}
}

func TestCancelStopsRunningJob(t *testing.T) {
	logger := zap.NewNop()
	mgr := New(logger, time.Hour, func(weekID council.WeekId) *pipeline.Pipeline {
		return pipeline.New(logger, nil, noopStage{name: "slow", delay: 2 * time.Second})
	})
	mgr.Start()
	defer mgr.Stop()

	id, err := mgr.Create(testWeekID(t))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Give the job a moment to reach Running before cancelling.
	time.Sleep(20 * time.Millisecond)
	if err := mgr.Cancel(id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var job Job
	for time.Now().Before(deadline) {
		j, _ := mgr.Status(id)
		job = j
		if job.Status == StatusCancelled || job.Status == StatusSucceeded || job.Status == StatusFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if job.Status != StatusCancelled {
		t.Fatalf("expected job to be cancelled, got %s", job.Status)
	}
}

func TestReapRemovesOldCompletedJobs(t *testing.T) {
	logger := zap.NewNop()
	mgr := New(logger, -time.Second, func(weekID council.WeekId) *pipeline.Pipeline {
		return pipeline.New(logger, nil, noopStage{name: "stage1"})
	})
	mgr.Start()
	defer mgr.Stop()

	id, _ := mgr.Create(testWeekID(t))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, _ := mgr.Status(id)
		if j.Status == StatusSucceeded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	removed := mgr.Reap()
	if removed != 1 {
		t.Fatalf("expected to reap 1 job, removed %d", removed)
	}
	if _, ok := mgr.Status(id); ok {
		t.Fatal("expected job to be gone after reap")
	}
}
