package workers

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	cfg := DefaultPoolConfig("test")
	cfg.NumWorkers = 2
	p := NewPool(zap.NewNop(), cfg)
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	if err := p.SubmitFunc(func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().TasksCompleted == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 1 completed task in stats, got %+v", p.Stats())
}

func TestPoolRecordsFailedTasks(t *testing.T) {
	cfg := DefaultPoolConfig("test")
	cfg.NumWorkers = 1
	p := NewPool(zap.NewNop(), cfg)
	p.Start()
	defer p.Stop()

	if err := p.SubmitFunc(func() error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().TasksFailed == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 1 failed task in stats, got %+v", p.Stats())
}

func TestSubmitAfterStopFails(t *testing.T) {
	p := NewPool(zap.NewNop(), DefaultPoolConfig("test"))
	if err := p.SubmitFunc(func() error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped before Start, got %v", err)
	}
}
