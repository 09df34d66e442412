// Package council provides shared type definitions for the weekly
// macro-trading council: week/account/instrument identifiers, the
// research/sentiment/pitch/review/decision value objects, and the
// bracket order and event envelope types that flow between stages.
package council

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WeekId identifies the Wednesday that anchors a weekly cycle. All
// artifacts for a run are partitioned by this key.
type WeekId string

// NewWeekId validates that t falls on a Wednesday and returns the
// canonical ISO-8601 date form used as the partition key.
func NewWeekId(t time.Time) (WeekId, error) {
	t = t.UTC()
	if t.Weekday() != time.Wednesday {
		return "", fmt.Errorf("week id must anchor a Wednesday, got %s (%s)", t.Format("2006-01-02"), t.Weekday())
	}
	return WeekId(t.Format("2006-01-02")), nil
}

func (w WeekId) String() string { return string(w) }

// Time parses the WeekId back into a UTC time.Time at midnight.
func (w WeekId) Time() time.Time {
	t, err := time.Parse("2006-01-02", string(w))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AccountId names one of the fixed enumerated brokerage sub-accounts.
type AccountId string

// AccountRole binds an account to exactly one role for the week.
type AccountRole string

const (
	RolePM        AccountRole = "pm"
	RoleChairman  AccountRole = "chairman"
	RoleBaseline  AccountRole = "baseline"
)

// Instrument is a ticker drawn from the closed tradable universe.
type Instrument string

// Direction is the signed trade direction a pitch or decision expresses.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// RiskProfile is one of the three fixed named risk buckets; no other
// (stop_loss_pct, take_profit_pct) pair is legal.
type RiskProfile string

const (
	RiskTight RiskProfile = "TIGHT"
	RiskBase  RiskProfile = "BASE"
	RiskWide  RiskProfile = "WIDE"
)

// RiskTriple is the fixed (stop_loss_pct, take_profit_pct) pair mapped
// to a RiskProfile.
type RiskTriple struct {
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
}

// DefaultRiskProfiles returns the three fixed risk-profile triples. A
// deployment may override these via config, but the set of profile
// names never changes.
func DefaultRiskProfiles() map[RiskProfile]RiskTriple {
	return map[RiskProfile]RiskTriple{
		RiskTight: {StopLossPct: decimal.NewFromFloat(0.02), TakeProfitPct: decimal.NewFromFloat(0.03)},
		RiskBase:  {StopLossPct: decimal.NewFromFloat(0.04), TakeProfitPct: decimal.NewFromFloat(0.08)},
		RiskWide:  {StopLossPct: decimal.NewFromFloat(0.08), TakeProfitPct: decimal.NewFromFloat(0.16)},
	}
}

// EntryMode selects how a pitch enters its position.
type EntryMode string

const (
	EntryMOO   EntryMode = "MOO"
	EntryLimit EntryMode = "limit"
)

// MarketEvent names a scheduled macro event a pitch may ask to exit
// ahead of.
type MarketEvent string

const (
	EventNFP  MarketEvent = "NFP"
	EventCPI  MarketEvent = "CPI"
	EventFOMC MarketEvent = "FOMC"
)

// EntryPolicy describes how a pitch enters its position.
type EntryPolicy struct {
	Mode       EntryMode        `json:"mode"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

// ExitPolicy describes the pitch's bracket and time-based exits.
type ExitPolicy struct {
	TimeStopDays      int           `json:"time_stop_days"`
	StopLossPct       decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct     decimal.Decimal `json:"take_profit_pct"`
	ExitBeforeEvents  []MarketEvent `json:"exit_before_events"`
}

// PackStatus is the completion state of a ResearchPack.
type PackStatus string

const (
	PackComplete PackStatus = "complete"
	PackError    PackStatus = "error"
)

// ResearchPack is one research provider's weekly output.
type ResearchPack struct {
	WeekId             WeekId     `json:"week_id"`
	Asof               time.Time  `json:"asof"`
	Source             string     `json:"source"`
	NaturalLanguage    string     `json:"natural_language"`
	MacroRegime        string     `json:"macro_regime"`
	TopNarratives      []string   `json:"top_narratives"`
	TradableCandidates []Instrument `json:"tradable_candidates"`
	EventCalendar      []MarketEvent `json:"event_calendar"`
	ConfidenceNotes    string     `json:"confidence_notes"`
	Status             PackStatus `json:"status"`
}

// MarketSentiment is the aggregated sentiment artifact produced by the
// Market-Sentiment stage. Degraded is set when the stage's external
// provider failed; the stage is advisory and the pipeline continues.
type MarketSentiment struct {
	WeekId        WeekId                  `json:"week_id"`
	Asof          time.Time               `json:"asof"`
	OverallScore  float64                 `json:"overall_score"`
	PerInstrument map[Instrument]float64  `json:"per_instrument"`
	Sources       []string                `json:"sources"`
	Degraded      bool                    `json:"degraded"`
}

// PMPitch is one portfolio-manager model's single weekly trade pitch.
type PMPitch struct {
	PitchID      string      `json:"pitch_id"`
	WeekId       WeekId      `json:"week_id"`
	Asof         time.Time   `json:"asof"`
	PMModel      string      `json:"pm_model"`
	AccountId    AccountId   `json:"account_id"`
	Instrument   Instrument  `json:"instrument"`
	Direction    Direction   `json:"direction"`
	Horizon      string      `json:"horizon"`
	Conviction   float64     `json:"conviction"`
	ThesisBullets []string   `json:"thesis_bullets"`
	RiskProfile  RiskProfile `json:"risk_profile"`
	EntryPolicy  EntryPolicy `json:"entry_policy"`
	ExitPolicy   ExitPolicy  `json:"exit_policy"`
	RiskNotes    string      `json:"risk_notes"`
}

// AnonymizedPitch is a PMPitch with pm_model/account_id replaced by a
// stable "Pitch <L>" label for peer review.
type AnonymizedPitch struct {
	Label      string
	PitchID    string
	Instrument Instrument
	Direction  Direction
	Horizon    string
	Conviction float64
	ThesisBullets []string
	RiskProfile   RiskProfile
	EntryPolicy   EntryPolicy
	ExitPolicy    ExitPolicy
	RiskNotes     string
}

// ReviewScores holds the seven fixed peer-review dimensions, each an
// integer in [1,10].
type ReviewScores struct {
	Clarity             int `json:"clarity"`
	EdgePlausibility     int `json:"edge_plausibility"`
	TimingCatalyst       int `json:"timing_catalyst"`
	RiskDefinition       int `json:"risk_definition"`
	IndicatorIntegrity   int `json:"indicator_integrity"`
	Originality          int `json:"originality"`
	Tradeability         int `json:"tradeability"`
}

// Mean returns the arithmetic mean of the seven dimensions.
func (s ReviewScores) Mean() float64 {
	total := s.Clarity + s.EdgePlausibility + s.TimingCatalyst + s.RiskDefinition +
		s.IndicatorIntegrity + s.Originality + s.Tradeability
	return float64(total) / 7.0
}

// PeerReview is one reviewer model's assessment of one target pitch.
type PeerReview struct {
	ReviewID           string       `json:"review_id"`
	WeekId             WeekId       `json:"week_id"`
	ReviewerModel       string       `json:"reviewer_model"`
	TargetLabel         string       `json:"target_label"`
	Scores              ReviewScores `json:"scores"`
	BestArgumentAgainst string       `json:"best_argument_against"`
	OneFlipCondition    string       `json:"one_flip_condition"`
	SuggestedFix        string       `json:"suggested_fix"`

	// DegradedShape records that the reviewer returned a single review
	// object rather than the contracted array; accepted, but logged.
	DegradedShape bool `json:"degraded_shape,omitempty"`
}

// ChairmanDecision is the chairman's synthesized trade decision.
type ChairmanDecision struct {
	DecisionID      string      `json:"decision_id"`
	WeekId          WeekId      `json:"week_id"`
	Instrument      Instrument  `json:"instrument"`
	Direction       Direction   `json:"direction"`
	Horizon         string      `json:"horizon"`
	RiskProfile     RiskProfile `json:"risk_profile"`
	Conviction      float64     `json:"conviction"`
	Rationale       string      `json:"rationale"`
	DissentSummary  []string    `json:"dissent_summary"`
	MonitoringPlan  string      `json:"monitoring_plan"`
}

// OrderSide is the side of a bracket order derived from a pitch or
// chairman decision's direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the entry order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is a bracket-order description ready for dispatch to a
// brokerage client.
type Order struct {
	AccountId        AccountId       `json:"account_id"`
	Symbol           Instrument      `json:"symbol"`
	Side             OrderSide       `json:"side"`
	Qty              int64           `json:"qty"`
	OrderType        OrderType       `json:"order_type"`
	TimeInForce      string          `json:"time_in_force"`
	LimitPrice       decimal.Decimal `json:"limit_price,omitempty"`
	TakeProfitPrice  decimal.Decimal `json:"take_profit_price"`
	StopLossPrice    decimal.Decimal `json:"stop_loss_price"`
}

// ExecutionStatus is the outcome of one account's execution attempt.
type ExecutionStatus string

const (
	ExecSubmitted ExecutionStatus = "submitted"
	ExecSkipped   ExecutionStatus = "skipped"
	ExecError     ExecutionStatus = "error"
)

// ExecutionResult is the per-account outcome of the Execution stage.
type ExecutionResult struct {
	TradeID   string          `json:"trade_id"`
	AccountId AccountId       `json:"account_id"`
	Status    ExecutionStatus `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// EventType enumerates the artifact kinds persisted to the event store,
// plus the three pipeline lifecycle markers.
type EventType string

const (
	EventResearchPack      EventType = "research_pack"
	EventMarketSentiment   EventType = "market_sentiment"
	EventPMPitch           EventType = "pm_pitch"
	EventPeerReview        EventType = "peer_review"
	EventPeerReviewCoverage EventType = "peer_review_coverage"
	EventChairmanDecision  EventType = "chairman_decision"
	EventExecutionResult   EventType = "execution_result"
	EventExecutionError    EventType = "execution_error"
	EventExecutionSkipped  EventType = "execution_skipped"
	EventStageStarted      EventType = "stage_started"
	EventStageCompleted    EventType = "stage_completed"
	EventStageFailed       EventType = "stage_failed"
)

// Event is the append-only record persisted by the event store gateway.
type Event struct {
	EventID   int64       `json:"event_id"`
	WeekId    WeekId      `json:"week_id"`
	AccountId *AccountId  `json:"account_id,omitempty"`
	EventType EventType   `json:"event_type"`
	CreatedAt time.Time   `json:"created_at"`
	Payload   []byte      `json:"payload"`
}

// AnonymizeLabels assigns deterministic "Pitch <L>" labels to pitches
// ordered by pitch_id ascending, A, B, C, ... Z, AA, AB, ...
func AnonymizeLabels(n int) []string {
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = labelFor(i)
	}
	return labels
}

func labelFor(i int) string {
	// Base-26 letters, spreadsheet-column style: 0->A, 25->Z, 26->AA.
	var buf []byte
	i++
	for i > 0 {
		i--
		buf = append([]byte{byte('A' + i%26)}, buf...)
		i /= 26
	}
	return "Pitch " + string(buf)
}

// SortPitchesByID returns pitches sorted by pitch_id ascending, the
// stable ordering anonymization is defined over.
func SortPitchesByID(pitches []PMPitch) []PMPitch {
	out := make([]PMPitch, len(pitches))
	copy(out, pitches)
	sort.Slice(out, func(i, j int) bool { return out[i].PitchID < out[j].PitchID })
	return out
}
