// Package harness fans a single prompt out to N LLM providers under a
// concurrency bound, with a per-call timeout and one JSON-repair
// retry round per provider, returning a result per provider without
// letting one failure abort the batch. It replaces the teacher's
// hand-rolled internal/workers.Pool channel fan-out for this
// specific per-call batch shape with golang.org/x/sync's
// errgroup/semaphore pair, the pack's dominant bounded-concurrency
// toolkit, while keeping the teacher's BatchProcessor's
// one-result-slot-per-item indexing idiom.
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/metrics"
	"github.com/llmcouncil/macrotrader/internal/ports"
)

// ProviderStatus is the outcome of one provider's call within a batch,
// matching spec.md's fan-out contract so a caller can tell a bad
// payload apart from an unreachable provider apart from a
// caller-side cancellation.
type ProviderStatus string

const (
	StatusOK             ProviderStatus = "ok"
	StatusParseError     ProviderStatus = "parse_error"
	StatusTimeout        ProviderStatus = "timeout"
	StatusTransportError ProviderStatus = "transport_error"
	StatusCancelled      ProviderStatus = "cancelled"
)

// ProviderResult is one provider's outcome: either a raw text payload
// on success, or a status/error describing why it failed.
type ProviderResult struct {
	ProviderID string
	Status     ProviderStatus
	Payload    string
	Err        error
}

// ValidateFunc parses and validates a raw provider payload, returning
// a descriptive error naming what failed. It never sees the caller's
// domain types, only the text the harness fed back from the provider.
type ValidateFunc func(payload string) error

// Request is one fan-out call: the prompt and model to call, the
// call's own options, and an optional Validate callback. When
// Validate is set, the harness runs it against a successful payload
// and, on failure, reissues the same prompt once with a repair
// instruction appended before giving up (spec.md's one-repair-round
// contract).
type Request struct {
	ProviderID string
	Prompt     string
	ModelID    string
	Opts       ports.AskOptions
	Validate   ValidateFunc
}

// Harness runs bounded-concurrency fan-out over an LLMProvider.
type Harness struct {
	provider       ports.LLMProvider
	maxConcurrency int64
	logger         *zap.Logger
}

// New returns a Harness bounded to maxConcurrency simultaneous calls.
func New(provider ports.LLMProvider, maxConcurrency int, logger *zap.Logger) *Harness {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Harness{provider: provider, maxConcurrency: int64(maxConcurrency), logger: logger.Named("harness")}
}

// FanOut issues every request concurrently (bounded by maxConcurrency),
// repairing and retrying once per provider on a structural failure,
// and returns one ProviderResult per request in input order. The
// returned error is non-nil only if ctx was cancelled before any
// calls completed; individual provider failures are reported in the
// per-provider results, not via the returned error (spec.md: one
// failed provider never aborts the batch).
func (h *Harness) FanOut(ctx context.Context, reqs []Request) ([]ProviderResult, error) {
	results := make([]ProviderResult, len(reqs))
	sem := semaphore.NewWeighted(h.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = ProviderResult{ProviderID: req.ProviderID, Status: StatusCancelled, Err: &councilerr.CancellationError{Stage: "harness.fanout"}}
				return nil
			}
			defer sem.Release(1)
			results[i] = h.call(gctx, req)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// call issues req once and, if it succeeds but fails req.Validate,
// reissues the same request exactly once with a repair instruction
// appended before giving up.
func (h *Harness) call(ctx context.Context, req Request) ProviderResult {
	result := h.attempt(ctx, req, req.Prompt)
	if result.Status != StatusOK || req.Validate == nil {
		return result
	}

	verr := req.Validate(result.Payload)
	if verr == nil {
		return result
	}

	h.logger.Warn("repairing provider response",
		zap.String("provider_id", req.ProviderID),
		zap.Error(verr),
	)
	repairPrompt := req.Prompt + fmt.Sprintf(
		"\n\nYour previous response failed validation: %s. Re-emit the complete corrected JSON object satisfying every requirement above; respond with JSON only.",
		verr.Error(),
	)
	repaired := h.attempt(ctx, req, repairPrompt)
	if repaired.Status != StatusOK {
		return repaired
	}
	if err := req.Validate(repaired.Payload); err != nil {
		return ProviderResult{
			ProviderID: req.ProviderID,
			Status:     StatusParseError,
			Err:        &councilerr.ValidationError{Field: "payload", Rule: "repair", Message: err.Error()},
		}
	}
	return repaired
}

// attempt issues a single round trip against prompt, classifying the
// outcome into one of the five provider statuses.
func (h *Harness) attempt(ctx context.Context, req Request, prompt string) ProviderResult {
	timeout := req.Opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := h.provider.Ask(callCtx, prompt, req.ModelID, req.Opts)
	if err != nil {
		switch {
		case callCtx.Err() == context.Canceled:
			h.logger.Warn("provider call cancelled", zap.String("provider_id", req.ProviderID))
			metrics.ProviderCallsTotal.WithLabelValues(req.ProviderID, string(StatusCancelled)).Inc()
			return ProviderResult{ProviderID: req.ProviderID, Status: StatusCancelled, Err: &councilerr.CancellationError{Stage: req.ProviderID}}
		case callCtx.Err() == context.DeadlineExceeded:
			h.logger.Warn("provider call timed out", zap.String("provider_id", req.ProviderID), zap.Duration("timeout", timeout))
			metrics.ProviderCallsTotal.WithLabelValues(req.ProviderID, string(StatusTimeout)).Inc()
			return ProviderResult{ProviderID: req.ProviderID, Status: StatusTimeout, Err: &councilerr.ProviderTimeoutError{ProviderID: req.ProviderID, Timeout: timeout.String()}}
		default:
			h.logger.Warn("provider call failed", zap.String("provider_id", req.ProviderID), zap.Error(err))
			metrics.ProviderCallsTotal.WithLabelValues(req.ProviderID, string(StatusTransportError)).Inc()
			return ProviderResult{ProviderID: req.ProviderID, Status: StatusTransportError, Err: &councilerr.ProviderTransportError{ProviderID: req.ProviderID, Err: err}}
		}
	}
	metrics.ProviderCallsTotal.WithLabelValues(req.ProviderID, string(StatusOK)).Inc()
	return ProviderResult{ProviderID: req.ProviderID, Status: StatusOK, Payload: res.Text}
}

// Succeeded filters a batch of results down to the providers that
// returned a payload.
func Succeeded(results []ProviderResult) []ProviderResult {
	var out []ProviderResult
	for _, r := range results {
		if r.Status == StatusOK {
			out = append(out, r)
		}
	}
	return out
}

// Failed filters a batch of results down to the providers that did
// not return a payload.
func Failed(results []ProviderResult) []ProviderResult {
	var out []ProviderResult
	for _, r := range results {
		if r.Status != StatusOK {
			out = append(out, r)
		}
	}
	return out
}
