package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/metrics"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// Stage is one step of the weekly run. Name identifies it for
// logging/metrics; Requires/Produces declare the Context keys it
// reads and writes so the Pipeline can check preconditions/contracts
// at the boundary instead of inside every stage body.
type Stage interface {
	Name() string
	Requires() []Key
	Produces() []Key
	Execute(ctx context.Context, pctx Context) (Context, error)
}

// ProgressStatus mirrors a stage's lifecycle transition within a run.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressUpdate is one stage lifecycle transition, carrying enough
// shape for the job manager to report Job.Stages[name] per spec.md's
// job entity: a status, a 0-100 percent-through-the-run figure, and a
// human message. SubProviders is populated when a fan-out stage
// reports its own per-provider breakdown; nil otherwise.
type ProgressUpdate struct {
	Stage        string
	Status       ProgressStatus
	Percent      int
	Message      string
	SubProviders map[string]string
	Err          error
}

// ProgressFunc is invoked on every stage lifecycle transition, the job
// manager's hook into per-stage progress.
type ProgressFunc func(update ProgressUpdate)

// Pipeline runs a fixed, ordered list of stages over a Context,
// checking preconditions before each stage and contracts after it,
// and persisting a stage_started/stage_completed/stage_failed event
// for each transition through the event store gateway.
type Pipeline struct {
	stages   []Stage
	store    eventstore.Gateway
	logger   *zap.Logger
	progress ProgressFunc
}

// New returns a Pipeline that will run stages in the given order,
// persisting lifecycle events to store. store may be nil in tests that
// don't care about event persistence.
func New(logger *zap.Logger, store eventstore.Gateway, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, store: store, logger: logger}
}

// OnProgress installs a callback invoked on every stage transition.
func (p *Pipeline) OnProgress(f ProgressFunc) { p.progress = f }

type stageEventPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// Run executes every stage in order, threading the Context through.
// It stops at the first stage that returns an error, or if ctx is
// cancelled between stages.
func (p *Pipeline) Run(ctx context.Context, initial Context) (Context, error) {
	pctx := initial
	total := len(p.stages)

	for idx, stage := range p.stages {
		startPercent := percentThrough(idx, total)
		endPercent := percentThrough(idx+1, total)

		select {
		case <-ctx.Done():
			err := &councilerr.CancellationError{Stage: stage.Name()}
			p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageFailed, "cancelled")
			p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressFailed, Percent: startPercent, Message: "cancelled", Err: err})
			return pctx, err
		default:
		}

		for _, req := range stage.Requires() {
			if !pctx.Has(req) {
				err := &councilerr.PreconditionError{Stage: stage.Name(), Missing: string(req)}
				p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageFailed, err.Error())
				p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressFailed, Percent: startPercent, Message: err.Error(), Err: err})
				return pctx, err
			}
		}

		start := time.Now()
		if p.logger != nil {
			p.logger.Info("stage started", zap.String("stage", stage.Name()), zap.String("week_id", string(pctx.WeekID)))
		}
		p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageStarted, "")
		p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressStarted, Percent: startPercent, Message: "stage started"})

		next, err := stage.Execute(ctx, pctx)
		elapsed := time.Since(start)
		metrics.StageDuration.WithLabelValues(stage.Name()).Observe(elapsed.Seconds())

		if err != nil {
			if p.logger != nil {
				p.logger.Error("stage failed", zap.String("stage", stage.Name()), zap.Duration("elapsed", elapsed), zap.Error(err))
			}
			p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageFailed, err.Error())
			p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressFailed, Percent: startPercent, Message: err.Error(), Err: err})
			return pctx, err
		}

		for _, prod := range stage.Produces() {
			if !next.Has(prod) {
				err := &councilerr.ContractError{Stage: stage.Name(), Message: "stage did not produce declared output " + string(prod)}
				if p.logger != nil {
					p.logger.Error("stage contract violated", zap.String("stage", stage.Name()), zap.Error(err))
				}
				p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageFailed, err.Error())
				p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressFailed, Percent: startPercent, Message: err.Error(), Err: err})
				return pctx, err
			}
		}

		if p.logger != nil {
			p.logger.Info("stage completed", zap.String("stage", stage.Name()), zap.Duration("elapsed", elapsed))
		}
		p.appendEvent(ctx, pctx.WeekID, stage.Name(), council.EventStageCompleted, "")
		p.notify(ProgressUpdate{Stage: stage.Name(), Status: ProgressCompleted, Percent: endPercent, Message: "stage completed"})
		pctx = next
	}
	return pctx, nil
}

func (p *Pipeline) notify(update ProgressUpdate) {
	if p.progress != nil {
		p.progress(update)
	}
}

func (p *Pipeline) appendEvent(ctx context.Context, weekID council.WeekId, stageName string, eventType council.EventType, message string) {
	if p.store == nil {
		return
	}
	payload := stageEventPayload{Stage: stageName, Message: message}
	if _, err := p.store.Append(ctx, weekID, nil, eventType, payload); err != nil && p.logger != nil {
		p.logger.Warn("failed to persist stage lifecycle event", zap.String("stage", stageName), zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func percentThrough(stagesDone, total int) int {
	if total == 0 {
		return 100
	}
	return stagesDone * 100 / total
}
