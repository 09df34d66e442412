package stages

import (
	"context"
	"fmt"
	"time"

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

// ResearchStage fans a research prompt out to every configured
// research source, producing one ResearchPack per source. Like
// Market-Sentiment, it is advisory: a provider that fails or produces
// an invalid pack contributes a PackError entry instead of aborting
// the pipeline.
type ResearchStage struct {
	cfg     *config.Config
	harness *harness.Harness
	store   eventstore.Gateway
	logger  *zap.Logger
}

func NewResearchStage(cfg *config.Config, provider ports.LLMProvider, store eventstore.Gateway, logger *zap.Logger) *ResearchStage {
	return &ResearchStage{
		cfg:     cfg,
		harness: harness.New(provider, cfg.MaxConcurrency, logger),
		store:   store,
		logger:  logger.Named("stages.research"),
	}
}

func (s *ResearchStage) Name() string            { return "research" }
func (s *ResearchStage) Requires() []pipeline.Key { return nil }
func (s *ResearchStage) Produces() []pipeline.Key { return []pipeline.Key{pipeline.KeyResearchPacks} }

func (s *ResearchStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	reqs := make([]harness.Request, len(s.cfg.ResearchSources))
	for i, source := range s.cfg.ResearchSources {
		reqs[i] = harness.Request{
			ProviderID: source,
			ModelID:    source,
			Prompt:     researchPrompt(pctx.WeekID, s.cfg),
			Opts:       ports.AskOptions{Temperature: s.cfg.Temperature, Timeout: s.cfg.ProviderTimeout},
			Validate:   s.validateDraft,
		}
	}

	results, err := s.harness.FanOut(ctx, reqs)
	if err != nil {
		return pctx, err
	}

	asof := time.Now().UTC()
	packs := make([]council.ResearchPack, 0, len(results))
	completed := 0
	for _, r := range results {
		pack := council.ResearchPack{WeekId: pctx.WeekID, Asof: asof, Source: r.ProviderID}
		if r.Status != harness.StatusOK {
			pack.Status = council.PackError
			packs = append(packs, pack)
			continue
		}
		if err := jsonx.ParseLenient(r.Payload, &pack); err != nil {
			pack.Status = council.PackError
			s.logger.Warn("research pack failed to parse", zap.String("source", r.ProviderID), zap.Error(err))
			packs = append(packs, pack)
			continue
		}
		pack.Status = council.PackComplete
		if err := validate.ResearchPack(s.cfg, pack); err != nil {
			pack.Status = council.PackError
			s.logger.Warn("research pack failed validation", zap.String("source", r.ProviderID), zap.Error(err))
		}
		packs = append(packs, pack)

		if pack.Status == council.PackComplete {
			completed++
			if _, err := s.store.Append(ctx, pctx.WeekID, nil, council.EventResearchPack, pack); err != nil {
				s.logger.Warn("failed to persist research pack", zap.String("source", r.ProviderID), zap.Error(err))
			}
		}
	}

	if completed == 0 {
		return pctx, &councilerr.ContractError{Stage: s.Name(), Message: "every research source failed"}
	}

	return pctx.With(pipeline.KeyResearchPacks, packs), nil
}

// validateDraft is the harness repair-loop callback: it parses a raw
// provider payload into a ResearchPack and runs the completed-pack
// contract, the only shape a research source is asked to produce.
func (s *ResearchStage) validateDraft(payload string) error {
	var pack council.ResearchPack
	if err := jsonx.ParseLenient(payload, &pack); err != nil {
		return err
	}
	pack.Status = council.PackComplete
	return validate.ResearchPack(s.cfg, pack)
}

func researchPrompt(weekID council.WeekId, cfg *config.Config) string {
	return fmt.Sprintf(
		"You are a macro research analyst. Produce a JSON ResearchPack for the week of %s covering the tradable universe %v. Fields: natural_language, macro_regime, top_narratives, tradable_candidates, event_calendar, confidence_notes.",
		weekID, cfg.TradableUniverse,
	)
}
