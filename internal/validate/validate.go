// Package validate enforces the contract every LLM-produced artifact
// must satisfy before the pipeline accepts it: required fields, value
// ranges, enum membership, banned keywords, risk-profile consistency,
// and instrument-universe membership. It mirrors
// internal/execution/executor.go's validateSignal idiom: explicit
// precondition checks that return a typed error the first time one
// fails, rather than accumulating a report.
package validate

import (
	"fmt"
	"strings"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// PMPitchDraft enforces the part of spec.md's pitch contract the LLM
// itself is responsible for getting right: required fields present,
// conviction in [-2,2], direction/risk_profile/entry_policy enums
// valid, instrument in the tradable universe, FLAT direction implying
// zero conviction, and no banned keyword in the thesis or risk notes.
// It deliberately excludes pitch_id (system-assigned after parsing)
// and exit_policy/risk_profile coherence (system-derived from
// risk_profile, never authored by the model), which PMPitch checks
// once the stage has enriched the pitch. This split lets the harness
// repair loop validate a freshly parsed, pre-enrichment payload
// without rejecting it over fields the model was never asked to set.
func PMPitchDraft(cfg *config.Config, p council.PMPitch) error {
	if p.Instrument == "" {
		return &councilerr.ValidationError{Field: "instrument", Rule: "required", Message: "instrument must not be empty"}
	}
	if !cfg.InUniverse(p.Instrument) {
		return &councilerr.ValidationError{Field: "instrument", Rule: "universe", Message: "instrument " + string(p.Instrument) + " is outside the tradable universe"}
	}
	switch p.Direction {
	case council.DirectionLong, council.DirectionShort, council.DirectionFlat:
	default:
		return &councilerr.ValidationError{Field: "direction", Rule: "enum", Message: "direction must be LONG, SHORT, or FLAT"}
	}
	if p.Conviction < -2 || p.Conviction > 2 {
		return &councilerr.ValidationError{Field: "conviction", Rule: "range", Message: "conviction must be in [-2,2]"}
	}
	if p.Direction == council.DirectionFlat && p.Conviction != 0 {
		return &councilerr.ValidationError{Field: "conviction", Rule: "flat_conviction", Message: "FLAT direction requires conviction == 0"}
	}
	switch p.RiskProfile {
	case council.RiskTight, council.RiskBase, council.RiskWide:
	default:
		return &councilerr.ValidationError{Field: "risk_profile", Rule: "enum", Message: "risk_profile must be TIGHT, BASE, or WIDE"}
	}
	switch p.EntryPolicy.Mode {
	case council.EntryMOO, council.EntryLimit:
	default:
		return &councilerr.ValidationError{Field: "entry_policy.mode", Rule: "enum", Message: "entry mode must be MOO or limit"}
	}
	if p.EntryPolicy.Mode == council.EntryLimit && p.EntryPolicy.LimitPrice == nil {
		return &councilerr.ValidationError{Field: "entry_policy.limit_price", Rule: "required", Message: "limit entry requires a limit_price"}
	}
	if len(p.ThesisBullets) == 0 {
		return &councilerr.ValidationError{Field: "thesis_bullets", Rule: "required", Message: "thesis_bullets must not be empty"}
	}
	if err := checkBannedKeywords(cfg, "thesis_bullets", strings.Join(p.ThesisBullets, " ")); err != nil {
		return err
	}
	if err := checkBannedKeywords(cfg, "risk_notes", p.RiskNotes); err != nil {
		return err
	}
	return nil
}

// PMPitch enforces the full pitch contract: everything PMPitchDraft
// checks, plus the system-assigned pitch_id and the risk-profile
// coherence invariant (exit_policy.stop_loss_pct/take_profit_pct must
// equal the risk_profile's mapped values) that the stage derives
// after parsing, not something the model is trusted to reproduce.
func PMPitch(cfg *config.Config, p council.PMPitch) error {
	if p.PitchID == "" {
		return &councilerr.ValidationError{Field: "pitch_id", Rule: "required", Message: "pitch_id must not be empty"}
	}
	if err := PMPitchDraft(cfg, p); err != nil {
		return err
	}
	triple, ok := council.DefaultRiskProfiles()[p.RiskProfile]
	if !ok {
		return &councilerr.ValidationError{Field: "risk_profile", Rule: "enum", Message: "risk_profile must be TIGHT, BASE, or WIDE"}
	}
	if !p.ExitPolicy.StopLossPct.Equal(triple.StopLossPct) || !p.ExitPolicy.TakeProfitPct.Equal(triple.TakeProfitPct) {
		return &councilerr.ValidationError{
			Field:   "exit_policy",
			Rule:    "risk_profile_coherence",
			Message: fmt.Sprintf("exit_policy stop_loss_pct/take_profit_pct must equal risk_profile %s's mapped values", p.RiskProfile),
		}
	}
	return nil
}

// PeerReview enforces spec.md's review contract: every score in
// [1,10], target_label non-empty, best_argument_against and
// one_flip_condition non-empty (a reviewer cannot simply agree
// without engaging critically).
func PeerReview(r council.PeerReview) error {
	if r.TargetLabel == "" {
		return &councilerr.ValidationError{Field: "target_label", Rule: "required", Message: "target_label must not be empty"}
	}
	scores := map[string]int{
		"clarity":             r.Scores.Clarity,
		"edge_plausibility":   r.Scores.EdgePlausibility,
		"timing_catalyst":     r.Scores.TimingCatalyst,
		"risk_definition":     r.Scores.RiskDefinition,
		"indicator_integrity": r.Scores.IndicatorIntegrity,
		"originality":         r.Scores.Originality,
		"tradeability":        r.Scores.Tradeability,
	}
	for field, v := range scores {
		if v < 1 || v > 10 {
			return &councilerr.ValidationError{Field: "scores." + field, Rule: "range", Message: "review scores must be in [1,10]"}
		}
	}
	if r.BestArgumentAgainst == "" {
		return &councilerr.ValidationError{Field: "best_argument_against", Rule: "required", Message: "must not be empty"}
	}
	if r.OneFlipCondition == "" {
		return &councilerr.ValidationError{Field: "one_flip_condition", Rule: "required", Message: "must not be empty"}
	}
	return nil
}

// ChairmanDecisionDraft enforces the part of spec.md's decision
// contract the model itself is responsible for: direction/risk_profile
// enums, conviction in [-2,2], a non-empty rationale and monitoring
// plan, and no banned keyword in the rationale. It excludes
// decision_id, assigned after parsing by the stage.
func ChairmanDecisionDraft(cfg *config.Config, d council.ChairmanDecision) error {
	if d.Instrument == "" || !cfg.InUniverse(d.Instrument) {
		return &councilerr.ValidationError{Field: "instrument", Rule: "universe", Message: "instrument must be in the tradable universe"}
	}
	switch d.Direction {
	case council.DirectionLong, council.DirectionShort, council.DirectionFlat:
	default:
		return &councilerr.ValidationError{Field: "direction", Rule: "enum", Message: "direction must be LONG, SHORT, or FLAT"}
	}
	if d.Conviction < -2 || d.Conviction > 2 {
		return &councilerr.ValidationError{Field: "conviction", Rule: "range", Message: "conviction must be in [-2,2]"}
	}
	if d.Direction == council.DirectionFlat && d.Conviction != 0 {
		return &councilerr.ValidationError{Field: "conviction", Rule: "flat_conviction", Message: "FLAT direction requires conviction == 0"}
	}
	switch d.RiskProfile {
	case council.RiskTight, council.RiskBase, council.RiskWide:
	default:
		return &councilerr.ValidationError{Field: "risk_profile", Rule: "enum", Message: "risk_profile must be TIGHT, BASE, or WIDE"}
	}
	if d.Rationale == "" {
		return &councilerr.ValidationError{Field: "rationale", Rule: "required", Message: "must not be empty"}
	}
	if d.MonitoringPlan == "" {
		return &councilerr.ValidationError{Field: "monitoring_plan", Rule: "required", Message: "must not be empty"}
	}
	return checkBannedKeywords(cfg, "rationale", d.Rationale)
}

// ChairmanDecision enforces the full decision contract: everything
// ChairmanDecisionDraft checks, plus the system-assigned decision_id.
func ChairmanDecision(cfg *config.Config, d council.ChairmanDecision) error {
	if d.DecisionID == "" {
		return &councilerr.ValidationError{Field: "decision_id", Rule: "required", Message: "decision_id must not be empty"}
	}
	return ChairmanDecisionDraft(cfg, d)
}

// ResearchPack enforces that a completed pack carries a usable
// macro_regime label and at least one tradable candidate drawn from
// the configured universe; an error-status pack is accepted as-is
// (the stage degrades rather than rejecting).
func ResearchPack(cfg *config.Config, p council.ResearchPack) error {
	if p.Status == council.PackError {
		return nil
	}
	if p.MacroRegime == "" {
		return &councilerr.ValidationError{Field: "macro_regime", Rule: "required", Message: "must not be empty"}
	}
	if len(p.TradableCandidates) == 0 {
		return &councilerr.ValidationError{Field: "tradable_candidates", Rule: "required", Message: "must not be empty"}
	}
	for _, c := range p.TradableCandidates {
		if !cfg.InUniverse(c) {
			return &councilerr.ValidationError{Field: "tradable_candidates", Rule: "universe", Message: "candidate " + string(c) + " is outside the tradable universe"}
		}
	}
	return nil
}

func checkBannedKeywords(cfg *config.Config, field, text string) error {
	lower := strings.ToLower(text)
	for _, kw := range cfg.BannedKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return &councilerr.ValidationError{Field: field, Rule: "banned_keyword", Message: "contains banned keyword: " + kw}
		}
	}
	return nil
}
