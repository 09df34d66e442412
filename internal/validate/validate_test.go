package validate

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TradableUniverse = []council.Instrument{"SPY", "QQQ"}
	cfg.BannedKeywords = []string{"guaranteed"}
	return cfg
}

func validPitch() council.PMPitch {
	triple := council.DefaultRiskProfiles()[council.RiskBase]
	return council.PMPitch{
		PitchID:       "p-1",
		Instrument:    "SPY",
		Direction:     council.DirectionLong,
		Conviction:    0.6,
		RiskProfile:   council.RiskBase,
		EntryPolicy:   council.EntryPolicy{Mode: council.EntryMOO},
		ExitPolicy:    council.ExitPolicy{StopLossPct: triple.StopLossPct, TakeProfitPct: triple.TakeProfitPct},
		ThesisBullets: []string{"macro tailwind"},
	}
}

func TestPMPitchValid(t *testing.T) {
	if err := PMPitch(testConfig(), validPitch()); err != nil {
		t.Fatalf("expected valid pitch to pass, got %v", err)
	}
}

func TestPMPitchRejectsOutsideUniverse(t *testing.T) {
	p := validPitch()
	p.Instrument = "TSLA"
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error for instrument outside universe")
	}
}

func TestPMPitchRejectsFlatWithConviction(t *testing.T) {
	p := validPitch()
	p.Direction = council.DirectionFlat
	p.Conviction = 0.3
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error for FLAT direction with nonzero conviction")
	}
}

func TestPMPitchRejectsBannedKeyword(t *testing.T) {
	p := validPitch()
	p.RiskNotes = "This is a guaranteed winner."
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error for banned keyword")
	}
}

func TestPMPitchAcceptsConvictionWithinExtendedRange(t *testing.T) {
	p := validPitch()
	p.Conviction = 1.5
	if err := PMPitch(testConfig(), p); err != nil {
		t.Fatalf("expected conviction 1.5 within [-2,2] to pass, got %v", err)
	}
}

func TestPMPitchRejectsConvictionOutOfRange(t *testing.T) {
	p := validPitch()
	p.Conviction = 2.5
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error for conviction out of [-2,2] range")
	}
}

func TestPMPitchRejectsNegativeConvictionOutOfRange(t *testing.T) {
	p := validPitch()
	p.Conviction = -2.5
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error for conviction below -2")
	}
}

func TestPMPitchAcceptsConvictionAtBoundaries(t *testing.T) {
	for _, c := range []float64{-2, 2} {
		p := validPitch()
		p.Conviction = c
		if err := PMPitch(testConfig(), p); err != nil {
			t.Fatalf("expected conviction %v at boundary to pass, got %v", c, err)
		}
	}
}

func TestPMPitchRejectsExitPolicyMismatchedToRiskProfile(t *testing.T) {
	p := validPitch()
	p.ExitPolicy.StopLossPct = p.ExitPolicy.StopLossPct.Mul(decimal.NewFromInt(2))
	if err := PMPitch(testConfig(), p); err == nil {
		t.Fatal("expected error when exit_policy does not match risk_profile's mapped values")
	}
}

func validReview() council.PeerReview {
	return council.PeerReview{
		TargetLabel: "Pitch A",
		Scores: council.ReviewScores{
			Clarity: 7, EdgePlausibility: 6, TimingCatalyst: 5,
			RiskDefinition: 8, IndicatorIntegrity: 7, Originality: 6, Tradeability: 7,
		},
		BestArgumentAgainst: "crowded trade",
		OneFlipCondition:    "a surprise CPI print",
	}
}

func TestPeerReviewValid(t *testing.T) {
	if err := PeerReview(validReview()); err != nil {
		t.Fatalf("expected valid review to pass, got %v", err)
	}
}

func TestPeerReviewRejectsScoreOutOfRange(t *testing.T) {
	r := validReview()
	r.Scores.Clarity = 11
	if err := PeerReview(r); err == nil {
		t.Fatal("expected error for score out of [1,10] range")
	}
}

func TestPeerReviewRejectsMissingBestArgument(t *testing.T) {
	r := validReview()
	r.BestArgumentAgainst = ""
	if err := PeerReview(r); err == nil {
		t.Fatal("expected error for missing best_argument_against")
	}
}

func validDecision() council.ChairmanDecision {
	return council.ChairmanDecision{
		DecisionID:     "d-1",
		Instrument:     "SPY",
		Direction:      council.DirectionLong,
		Conviction:     0.5,
		RiskProfile:    council.RiskBase,
		Rationale:      "council consensus bullish",
		MonitoringPlan: "reassess at next CPI print",
	}
}

func TestChairmanDecisionValid(t *testing.T) {
	if err := ChairmanDecision(testConfig(), validDecision()); err != nil {
		t.Fatalf("expected valid decision to pass, got %v", err)
	}
}

func TestChairmanDecisionAcceptsConvictionWithinExtendedRange(t *testing.T) {
	d := validDecision()
	d.Conviction = -1.8
	if err := ChairmanDecision(testConfig(), d); err != nil {
		t.Fatalf("expected conviction -1.8 within [-2,2] to pass, got %v", err)
	}
}

func TestChairmanDecisionRejectsConvictionOutOfRange(t *testing.T) {
	d := validDecision()
	d.Conviction = 2.1
	if err := ChairmanDecision(testConfig(), d); err == nil {
		t.Fatal("expected error for conviction out of [-2,2] range")
	}
}

func TestChairmanDecisionRejectsEmptyRationale(t *testing.T) {
	d := validDecision()
	d.Rationale = ""
	if err := ChairmanDecision(testConfig(), d); err == nil {
		t.Fatal("expected error for empty rationale")
	}
}

func TestResearchPackErrorStatusBypassesValidation(t *testing.T) {
	p := council.ResearchPack{Status: council.PackError}
	if err := ResearchPack(testConfig(), p); err != nil {
		t.Fatalf("expected error-status pack to bypass validation, got %v", err)
	}
}

func TestResearchPackRejectsCandidateOutsideUniverse(t *testing.T) {
	p := council.ResearchPack{
		Status:             council.PackComplete,
		MacroRegime:        "disinflation",
		TradableCandidates: []council.Instrument{"TSLA"},
	}
	if err := ResearchPack(testConfig(), p); err == nil {
		t.Fatal("expected error for candidate outside universe")
	}
}
