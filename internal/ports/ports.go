// Package ports defines the external-system boundaries the council
// pipeline talks to: LLM providers, brokerage clients, market
// snapshots, and web search. Only interfaces and deterministic
// in-memory fakes live here — real vendor HTTP clients are out of
// scope, the same way the teacher treats internal/execution's
// ExchangeAdapter as an interface with a paper-trading fallback.
package ports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/llmcouncil/macrotrader/pkg/council"
)

// AskOptions tunes a single LLM call.
type AskOptions struct {
	Temperature float64
	Timeout     time.Duration
}

// AskResult is the raw response text from an LLM call.
type AskResult struct {
	Text      string
	ModelID   string
	LatencyMs int64
}

// LLMProvider issues a single prompt/response round trip against one
// named model.
type LLMProvider interface {
	Ask(ctx context.Context, prompt, modelID string, opts AskOptions) (AskResult, error)
}

// BrokerAck is the brokerage's acknowledgement of a submitted bracket
// order.
type BrokerAck struct {
	OrderID string
	Status  string
}

// BrokerClient places bracket orders into one isolated sub-account.
type BrokerClient interface {
	PlaceBracket(ctx context.Context, order council.Order) (BrokerAck, error)
}

// SnapshotView is a point-in-time market read used by the Execution
// stage to price bracket orders.
type SnapshotView struct {
	Asof   time.Time
	Prices map[council.Instrument]float64
	// AccountEquity is the reference equity the Execution stage scales
	// a conviction's size_factor against to derive order quantity.
	AccountEquity float64
}

// MarketSnapshot returns a market snapshot as of a given time.
type MarketSnapshot interface {
	Snapshot(ctx context.Context, asof time.Time) (SnapshotView, error)
}

// SearchResult is one web-search hit used by the Market-Sentiment
// stage's aggregation provider.
type SearchResult struct {
	Title   string
	Snippet string
	URL     string
}

// WebSearchProvider performs a web search for the Market-Sentiment
// stage's sentiment aggregator.
type WebSearchProvider interface {
	Search(ctx context.Context, query string, n int) ([]SearchResult, error)
}

// FakeLLMProvider is a deterministic in-memory LLMProvider used by
// tests: it returns a canned response per model_id, recording calls
// so tests can assert on fan-out behavior, mirroring
// executor.go's simulateExecution fallback for paper trading.
type FakeLLMProvider struct {
	mu sync.Mutex
	// Responses is the static per-model response returned on every
	// call. Sequences, when set for a model_id, takes precedence and
	// returns its next unconsumed entry per call (falling back to
	// Responses once exhausted) — used to script a repair-loop
	// scenario where the first call returns a bad payload and the
	// second, repaired call returns a clean one.
	Responses  map[string]string
	Sequences  map[string][]string
	Errors     map[string]error
	Delays     map[string]time.Duration
	Calls      []string
	callCounts map[string]int
}

// NewFakeLLMProvider returns an empty fake; populate Responses/Errors
// before use.
func NewFakeLLMProvider() *FakeLLMProvider {
	return &FakeLLMProvider{
		Responses:  map[string]string{},
		Sequences:  map[string][]string{},
		Errors:     map[string]error{},
		Delays:     map[string]time.Duration{},
		callCounts: map[string]int{},
	}
}

func (f *FakeLLMProvider) Ask(ctx context.Context, prompt, modelID string, opts AskOptions) (AskResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, modelID)
	count := f.callCounts[modelID]
	f.callCounts[modelID] = count + 1
	delay := f.Delays[modelID]
	err := f.Errors[modelID]
	resp := f.Responses[modelID]
	if seq, ok := f.Sequences[modelID]; ok && count < len(seq) {
		resp = seq[count]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return AskResult{}, ctx.Err()
		}
	}
	if err != nil {
		return AskResult{}, err
	}
	if resp == "" {
		return AskResult{}, fmt.Errorf("fake provider: no response configured for %s", modelID)
	}
	return AskResult{Text: resp, ModelID: modelID}, nil
}

// FakeBrokerClient is a deterministic in-memory BrokerClient that
// always acknowledges orders unless configured to fail.
type FakeBrokerClient struct {
	mu      sync.Mutex
	FailFor map[council.AccountId]error
	Orders  []council.Order
	next    int
}

func NewFakeBrokerClient() *FakeBrokerClient {
	return &FakeBrokerClient{FailFor: map[council.AccountId]error{}}
}

func (f *FakeBrokerClient) PlaceBracket(ctx context.Context, order council.Order) (BrokerAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[order.AccountId]; ok && err != nil {
		return BrokerAck{}, err
	}
	f.Orders = append(f.Orders, order)
	f.next++
	return BrokerAck{OrderID: fmt.Sprintf("fake-order-%d", f.next), Status: "accepted"}, nil
}

// FakeMarketSnapshot returns a fixed set of prices regardless of
// asof, sufficient for deterministic unit tests.
type FakeMarketSnapshot struct {
	Prices        map[council.Instrument]float64
	AccountEquity float64
}

func (f *FakeMarketSnapshot) Snapshot(ctx context.Context, asof time.Time) (SnapshotView, error) {
	return SnapshotView{Asof: asof, Prices: f.Prices, AccountEquity: f.AccountEquity}, nil
}

// FakeWebSearchProvider returns canned results for any query.
type FakeWebSearchProvider struct {
	Results []SearchResult
}

func (f *FakeWebSearchProvider) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if n > len(f.Results) {
		n = len(f.Results)
	}
	return f.Results[:n], nil
}
