package stages

import (
	"context"
	"fmt"

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

// ChairmanStage synthesizes the anonymized pitches and their peer
// reviews into a single ChairmanDecision via one dedicated chairman
// model call.
type ChairmanStage struct {
	cfg     *config.Config
	harness *harness.Harness
	store   eventstore.Gateway
	logger  *zap.Logger
}

func NewChairmanStage(cfg *config.Config, provider ports.LLMProvider, store eventstore.Gateway, logger *zap.Logger) *ChairmanStage {
	return &ChairmanStage{
		cfg:     cfg,
		harness: harness.New(provider, 1, logger),
		store:   store,
		logger:  logger.Named("stages.chairman"),
	}
}

func (s *ChairmanStage) Name() string { return "chairman" }
func (s *ChairmanStage) Requires() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyAnonymizedPitches, pipeline.KeyPeerReviews}
}
func (s *ChairmanStage) Produces() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyChairmanDecision}
}

func (s *ChairmanStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	anonPitches, _ := pctx.Get(pipeline.KeyAnonymizedPitches)
	reviews, _ := pctx.Get(pipeline.KeyPeerReviews)

	req := harness.Request{
		ProviderID: s.cfg.ChairmanModelID,
		ModelID:    s.cfg.ChairmanModelID,
		Prompt:     chairmanPrompt(pctx.WeekID, anonPitches, reviews, s.cfg),
		Opts:       ports.AskOptions{Temperature: s.cfg.Temperature, Timeout: s.cfg.ProviderTimeout},
		Validate:   s.validateDraft,
	}

	results, err := s.harness.FanOut(ctx, []harness.Request{req})
	if err != nil {
		return pctx, err
	}
	result := results[0]
	if result.Status != harness.StatusOK {
		return pctx, &councilerr.ContractError{Stage: s.Name(), Message: "chairman model failed: " + string(result.Status)}
	}

	var decision council.ChairmanDecision
	if err := jsonx.ParseLenient(result.Payload, &decision); err != nil {
		return pctx, &councilerr.ContractError{Stage: s.Name(), Message: "chairman payload did not parse: " + err.Error()}
	}
	decision.DecisionID = uuid.New().String()
	decision.WeekId = pctx.WeekID

	if err := validate.ChairmanDecision(s.cfg, decision); err != nil {
		return pctx, err
	}

	if _, err := s.store.Append(ctx, pctx.WeekID, &s.cfg.ChairmanAccount, council.EventChairmanDecision, decision); err != nil {
		s.logger.Warn("failed to persist chairman decision", zap.Error(err))
	}

	return pctx.With(pipeline.KeyChairmanDecision, decision), nil
}

// validateDraft is the harness repair-loop callback: it parses a raw
// chairman payload and runs the draft contract, excluding decision_id
// which the stage assigns only after a successful round trip.
func (s *ChairmanStage) validateDraft(payload string) error {
	var decision council.ChairmanDecision
	if err := jsonx.ParseLenient(payload, &decision); err != nil {
		return err
	}
	return validate.ChairmanDecisionDraft(s.cfg, decision)
}

func chairmanPrompt(weekID council.WeekId, anonPitches, reviews any, cfg *config.Config) string {
	return fmt.Sprintf(
		"You are the council chairman. Week %s. Anonymized pitches: %v. Peer reviews: %v. Synthesize a single JSON ChairmanDecision: instrument (must be in %v), direction, horizon, risk_profile, conviction in [-2,2], rationale, dissent_summary (array), monitoring_plan.",
		weekID, anonPitches, reviews, cfg.TradableUniverse,
	)
}
