package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/harness"
	"github.com/llmcouncil/macrotrader/internal/jsonx"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/internal/ports"
	"github.com/llmcouncil/macrotrader/internal/validate"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// PMPitchStage fans the weekly research/sentiment context out to
// every PM model in the roster, collecting one validated PMPitch per
// model that responds with a contract-conforming payload. A PM whose
// payload fails to parse or validate is excluded from the pitch set
// but does not fail the pipeline, unless every PM fails (a
// ContractError: the council cannot review an empty slate).
type PMPitchStage struct {
	cfg     *config.Config
	harness *harness.Harness
	store   eventstore.Gateway
	logger  *zap.Logger
}

func NewPMPitchStage(cfg *config.Config, provider ports.LLMProvider, store eventstore.Gateway, logger *zap.Logger) *PMPitchStage {
	return &PMPitchStage{
		cfg:     cfg,
		harness: harness.New(provider, cfg.MaxConcurrency, logger),
		store:   store,
		logger:  logger.Named("stages.pmpitch"),
	}
}

func (s *PMPitchStage) Name() string { return "pm_pitch" }
func (s *PMPitchStage) Requires() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyMarketSentiment, pipeline.KeyResearchPacks}
}
func (s *PMPitchStage) Produces() []pipeline.Key { return []pipeline.Key{pipeline.KeyPMPitches} }

func (s *PMPitchStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	sentiment, _ := pctx.Get(pipeline.KeyMarketSentiment)
	packs, _ := pctx.Get(pipeline.KeyResearchPacks)

	reqs := make([]harness.Request, len(s.cfg.PMRoster))
	for i, pm := range s.cfg.PMRoster {
		reqs[i] = harness.Request{
			ProviderID: pm.ModelID,
			ModelID:    pm.ModelID,
			Prompt:     pmPitchPrompt(pctx.WeekID, pm.ModelID, sentiment, packs, s.cfg),
			Opts:       ports.AskOptions{Temperature: s.cfg.Temperature, Timeout: s.cfg.ProviderTimeout},
			Validate:   s.validateDraft,
		}
	}

	results, err := s.harness.FanOut(ctx, reqs)
	if err != nil {
		return pctx, err
	}

	asof := time.Now().UTC()
	var pitches []council.PMPitch
	for i, r := range results {
		pm := s.cfg.PMRoster[i]
		if r.Status != harness.StatusOK {
			s.logger.Warn("pm pitch provider failed", zap.String("pm_model", pm.ModelID), zap.String("status", string(r.Status)))
			continue
		}

		var pitch council.PMPitch
		if err := jsonx.ParseLenient(r.Payload, &pitch); err != nil {
			s.logger.Warn("pm pitch failed to parse", zap.String("pm_model", pm.ModelID), zap.Error(err))
			continue
		}
		pitch.PitchID = uuid.New().String()
		pitch.WeekId = pctx.WeekID
		pitch.Asof = asof
		pitch.PMModel = pm.ModelID
		pitch.AccountId = pm.AccountId
		if triple, ok := council.DefaultRiskProfiles()[pitch.RiskProfile]; ok {
			pitch.ExitPolicy.StopLossPct = triple.StopLossPct
			pitch.ExitPolicy.TakeProfitPct = triple.TakeProfitPct
		}

		if err := validate.PMPitch(s.cfg, pitch); err != nil {
			s.logger.Warn("pm pitch failed validation", zap.String("pm_model", pm.ModelID), zap.Error(err))
			continue
		}
		pitches = append(pitches, pitch)

		if _, err := s.store.Append(ctx, pctx.WeekID, &pm.AccountId, council.EventPMPitch, pitch); err != nil {
			s.logger.Warn("failed to persist pm pitch", zap.Error(err))
		}
	}

	if len(pitches) == 0 {
		return pctx, &councilerr.ContractError{Stage: s.Name(), Message: "no PM produced a valid pitch"}
	}

	return pctx.With(pipeline.KeyPMPitches, pitches), nil
}

// validateDraft is the harness repair-loop callback: it parses a raw
// provider payload into a PMPitch and runs the draft contract (no
// pitch_id or risk-profile coherence check, since both are assigned
// by the stage after the provider round trip completes).
func (s *PMPitchStage) validateDraft(payload string) error {
	var pitch council.PMPitch
	if err := jsonx.ParseLenient(payload, &pitch); err != nil {
		return err
	}
	return validate.PMPitchDraft(s.cfg, pitch)
}

func pmPitchPrompt(weekID council.WeekId, pmModel string, sentiment, packs any, cfg *config.Config) string {
	return fmt.Sprintf(
		"You are portfolio manager %s. Week %s. Market sentiment: %v. Research packs: %v. Produce a single JSON PMPitch choosing one instrument from %v, with direction, conviction in [-2,2], risk_profile (TIGHT/BASE/WIDE), entry_policy, exit_policy, thesis_bullets, and risk_notes.",
		pmModel, weekID, sentiment, packs, cfg.TradableUniverse,
	)
}
