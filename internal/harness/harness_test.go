package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/ports"
)

func TestFanOutReturnsOnePerRequestWithMixedOutcomes(t *testing.T) {
	fake := ports.NewFakeLLMProvider()
	fake.Responses["pm-alpha"] = `{"ok":true}`
	fake.Errors["pm-beta"] = errors.New("boom")
	fake.Delays["pm-gamma"] = 200 * time.Millisecond

	h := New(fake, 2, zap.NewNop())
	reqs := []Request{
		{ProviderID: "pm-alpha", ModelID: "pm-alpha", Opts: ports.AskOptions{Timeout: time.Second}},
		{ProviderID: "pm-beta", ModelID: "pm-beta", Opts: ports.AskOptions{Timeout: time.Second}},
		{ProviderID: "pm-gamma", ModelID: "pm-gamma", Opts: ports.AskOptions{Timeout: 50 * time.Millisecond}},
	}

	results, err := h.FanOut(context.Background(), reqs)
	if err != nil {
		t.Fatalf("unexpected fanout error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status != StatusOK {
		t.Errorf("expected pm-alpha ok, got %s", results[0].Status)
	}
	if results[1].Status != StatusTransportError {
		t.Errorf("expected pm-beta transport_error, got %s", results[1].Status)
	}
	if results[2].Status != StatusTimeout {
		t.Errorf("expected pm-gamma timeout, got %s", results[2].Status)
	}

	if len(Succeeded(results)) != 1 {
		t.Errorf("expected 1 succeeded, got %d", len(Succeeded(results)))
	}
	if len(Failed(results)) != 2 {
		t.Errorf("expected 2 failed, got %d", len(Failed(results)))
	}
}

func TestFanOutRespectsConcurrencyBound(t *testing.T) {
	fake := ports.NewFakeLLMProvider()
	for _, id := range []string{"a", "b", "c", "d"} {
		fake.Responses[id] = "ok"
		fake.Delays[id] = 50 * time.Millisecond
	}
	h := New(fake, 2, zap.NewNop())
	reqs := []Request{
		{ProviderID: "a", ModelID: "a", Opts: ports.AskOptions{Timeout: time.Second}},
		{ProviderID: "b", ModelID: "b", Opts: ports.AskOptions{Timeout: time.Second}},
		{ProviderID: "c", ModelID: "c", Opts: ports.AskOptions{Timeout: time.Second}},
		{ProviderID: "d", ModelID: "d", Opts: ports.AskOptions{Timeout: time.Second}},
	}

	start := time.Now()
	results, err := h.FanOut(context.Background(), reqs)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	// With concurrency bound 2 and 4 calls at 50ms each, this must take
	// at least two "rounds" worth of time.
	if elapsed < 90*time.Millisecond {
		t.Errorf("expected fan-out to serialize into at least 2 rounds, took %s", elapsed)
	}
}

// TestCallRepairsOnceThenSucceeds exercises the repair loop: a
// Validate callback that rejects the first response must trigger
// exactly one additional provider call with a repair-instruction
// prompt, and the second, clean response must be accepted.
func TestCallRepairsOnceThenSucceeds(t *testing.T) {
	fake := ports.NewFakeLLMProvider()
	fake.Sequences["pm-alpha"] = []string{`{"bad":true}`, `{"good":true}`}

	h := New(fake, 1, zap.NewNop())
	attempts := 0
	req := Request{
		ProviderID: "pm-alpha",
		ModelID:    "pm-alpha",
		Prompt:     "produce json",
		Opts:       ports.AskOptions{Timeout: time.Second},
		Validate: func(payload string) error {
			attempts++
			if payload == `{"bad":true}` {
				return errors.New("contains banned field")
			}
			return nil
		},
	}

	results, err := h.FanOut(context.Background(), []Request{req})
	if err != nil {
		t.Fatalf("unexpected fanout error: %v", err)
	}
	if results[0].Status != StatusOK {
		t.Fatalf("expected ok after repair, got %s (%v)", results[0].Status, results[0].Err)
	}
	if results[0].Payload != `{"good":true}` {
		t.Fatalf("expected repaired payload, got %s", results[0].Payload)
	}
	if len(fake.Calls) != 2 {
		t.Fatalf("expected exactly 2 provider calls (one repair round), got %d", len(fake.Calls))
	}
	if attempts != 2 {
		t.Fatalf("expected Validate invoked twice, got %d", attempts)
	}
}

// TestCallFailsAfterOneRepairRound confirms the harness never issues
// a second repair round: if the repaired response still fails
// Validate, the result is StatusParseError after exactly 2 calls.
func TestCallFailsAfterOneRepairRound(t *testing.T) {
	fake := ports.NewFakeLLMProvider()
	fake.Sequences["pm-alpha"] = []string{`{"bad":true}`, `{"still_bad":true}`}

	h := New(fake, 1, zap.NewNop())
	req := Request{
		ProviderID: "pm-alpha",
		ModelID:    "pm-alpha",
		Prompt:     "produce json",
		Opts:       ports.AskOptions{Timeout: time.Second},
		Validate: func(payload string) error {
			return errors.New("never valid")
		},
	}

	results, err := h.FanOut(context.Background(), []Request{req})
	if err != nil {
		t.Fatalf("unexpected fanout error: %v", err)
	}
	if results[0].Status != StatusParseError {
		t.Fatalf("expected parse_error after exhausted repair, got %s", results[0].Status)
	}
	if len(fake.Calls) != 2 {
		t.Fatalf("expected exactly 2 provider calls, got %d", len(fake.Calls))
	}
}

// TestFanOutReportsCancelledWhenContextCancelledFirst confirms a
// request whose context is already cancelled is reported as
// StatusCancelled, distinct from a transport failure.
func TestFanOutReportsCancelledWhenContextCancelledFirst(t *testing.T) {
	fake := ports.NewFakeLLMProvider()
	fake.Responses["pm-alpha"] = "irrelevant"
	fake.Delays["pm-alpha"] = time.Hour

	h := New(fake, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _ := h.FanOut(ctx, []Request{
		{ProviderID: "pm-alpha", ModelID: "pm-alpha", Opts: ports.AskOptions{Timeout: time.Second}},
	})
	if results[0].Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s (%v)", results[0].Status, results[0].Err)
	}
}
