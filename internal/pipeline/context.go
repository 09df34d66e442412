// Package pipeline implements the weekly run's typed, immutable
// context and the fixed-order Stage runtime that threads it through
// Market-Sentiment, Research, PM-Pitch, Peer-Review, Chairman, and
// Execution. It generalizes the teacher's internal/workers.Pool
// Pipeline/Stage toy abstraction (AddStage + sequential Execute over
// pool.SubmitFunc) into a typed, context-threading runtime instead of
// an untyped interface{} handoff between pool-submitted stages.
package pipeline

import (
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// Key names one value slot carried through the pipeline Context.
type Key string

const (
	KeyWeekID           Key = "week_id"
	KeyMarketSentiment  Key = "market_sentiment"
	KeyResearchPacks     Key = "research_packs"
	KeyPMPitches         Key = "pm_pitches"
	KeyAnonymizedPitches Key = "anonymized_pitches"
	KeyPeerReviews       Key = "peer_reviews"
	KeyChairmanDecision  Key = "chairman_decision"
	KeyExecutionResults  Key = "execution_results"
)

// Context is an immutable, copy-on-write value bag threaded through
// the pipeline. Every stage receives the Context its predecessor
// produced and returns a new Context with its own outputs added;
// nothing is mutated in place, so a Context captured by a progress
// snapshot or a retry is never invalidated by a later stage.
type Context struct {
	WeekID council.WeekId
	values map[Key]any
}

// NewContext starts a fresh, empty Context for a given week.
func NewContext(weekID council.WeekId) Context {
	return Context{WeekID: weekID, values: map[Key]any{}}
}

// With returns a new Context with key set to value, leaving the
// receiver unmodified.
func (c Context) With(key Key, value any) Context {
	next := make(map[Key]any, len(c.values)+1)
	for k, v := range c.values {
		next[k] = v
	}
	next[key] = value
	return Context{WeekID: c.WeekID, values: next}
}

// Get returns the value stored at key and whether it was present.
func (c Context) Get(key Key) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key has a value in this Context.
func (c Context) Has(key Key) bool {
	_, ok := c.values[key]
	return ok
}
