package main

import (
	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/internal/ports"
	"github.com/llmcouncil/macrotrader/internal/stages"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// buildPipeline returns a factory that assembles a fresh Pipeline (and
// fresh stages) for each week, so no state leaks between runs. Which
// stages run depends on cfg.Mode: chat_only and ranking both stop
// short of execution, full runs the whole council end to end
// (resolved Open Question, SPEC_FULL.md §9).
func buildPipeline(
	cfg *config.Config,
	llmProvider ports.LLMProvider,
	searchProvider ports.WebSearchProvider,
	broker ports.BrokerClient,
	snapshot ports.MarketSnapshot,
	store eventstore.Gateway,
	logger *zap.Logger,
) func(weekID council.WeekId) *pipeline.Pipeline {
	return func(weekID council.WeekId) *pipeline.Pipeline {
		sentimentStage := stages.NewSentimentStage(cfg, searchProvider, llmProvider, store, logger)
		researchStage := stages.NewResearchStage(cfg, llmProvider, store, logger)
		pmPitchStage := stages.NewPMPitchStage(cfg, llmProvider, store, logger)
		peerReviewStage := stages.NewPeerReviewStage(cfg, llmProvider, store, logger)
		chairmanStage := stages.NewChairmanStage(cfg, llmProvider, store, logger)
		executionStage := stages.NewExecutionStage(cfg, broker, snapshot, store, logger)

		switch cfg.Mode {
		case config.ModeChatOnly:
			return pipeline.New(logger, store, sentimentStage, researchStage, pmPitchStage)
		case config.ModeRanking:
			return pipeline.New(logger, store, sentimentStage, researchStage, pmPitchStage, peerReviewStage, chairmanStage)
		default: // config.ModeFull
			return pipeline.New(logger, store, sentimentStage, researchStage, pmPitchStage, peerReviewStage, chairmanStage, executionStage)
		}
	}
}
