// Package stages implements the six pipeline stages: Market-Sentiment,
// Research, PM-Pitch, Peer-Review, Chairman, and Execution. Each file
// implements pipeline.Stage for one stage, grounded on
// internal/orchestrator.go's one-method-per-domain-concern event
// handlers (handleBarEvent, handleSignalEvent, ...) for shape, and on
// internal/execution/executor.go for the Execution stage's bracket
// order construction and broker retry/paper-trading idiom.
package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/harness"
	"github.com/llmcouncil/macrotrader/internal/jsonx"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/internal/ports"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// SentimentStage computes a weekly market-sentiment artifact by
// issuing a web search per instrument, then asking a short LLM call
// to score each returned result [-1,1] for that instrument. It is
// advisory: a failed search degrades the artifact (Degraded=true,
// empty per-instrument scores) rather than failing the pipeline, per
// spec.md's "advisory stage" design.
type SentimentStage struct {
	cfg     *config.Config
	search  ports.WebSearchProvider
	harness *harness.Harness
	store   eventstore.Gateway
	logger  *zap.Logger
}

// NewSentimentStage builds a Market-Sentiment stage.
func NewSentimentStage(cfg *config.Config, search ports.WebSearchProvider, provider ports.LLMProvider, store eventstore.Gateway, logger *zap.Logger) *SentimentStage {
	return &SentimentStage{
		cfg:     cfg,
		search:  search,
		harness: harness.New(provider, cfg.MaxConcurrency, logger),
		store:   store,
		logger:  logger.Named("stages.sentiment"),
	}
}

func (s *SentimentStage) Name() string            { return "market_sentiment" }
func (s *SentimentStage) Requires() []pipeline.Key { return nil }
func (s *SentimentStage) Produces() []pipeline.Key { return []pipeline.Key{pipeline.KeyMarketSentiment} }

// scoredResult pairs a search hit with the instrument it was fetched
// for, so a flattened fan-out batch can be regrouped after scoring.
type scoredResult struct {
	instrument council.Instrument
	result     ports.SearchResult
}

func (s *SentimentStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	asof := time.Now().UTC()
	sentiment := council.MarketSentiment{
		WeekId:        pctx.WeekID,
		Asof:          asof,
		PerInstrument: map[council.Instrument]float64{},
		Sources:       []string{s.cfg.SentimentSearchProvider},
	}

	var items []scoredResult
	searchFailed := false
	for _, instr := range s.cfg.TradableUniverse {
		results, err := s.search.Search(ctx, fmt.Sprintf("macro market sentiment %s week of %s", instr, pctx.WeekID), 5)
		if err != nil {
			s.logger.Warn("sentiment search failed for instrument, degrading", zap.String("instrument", string(instr)), zap.Error(err))
			searchFailed = true
			continue
		}
		for _, r := range results {
			items = append(items, scoredResult{instrument: instr, result: r})
		}
	}

	if len(items) == 0 {
		sentiment.Degraded = true
		if _, err := s.store.Append(ctx, pctx.WeekID, nil, council.EventMarketSentiment, sentiment); err != nil {
			s.logger.Warn("failed to persist market sentiment", zap.Error(err))
		}
		return pctx.With(pipeline.KeyMarketSentiment, sentiment), nil
	}

	reqs := make([]harness.Request, len(items))
	for i, item := range items {
		reqs[i] = harness.Request{
			ProviderID: fmt.Sprintf("%s#%d", item.instrument, i),
			ModelID:    s.cfg.SentimentModelID,
			Prompt:     sentimentScorePrompt(item.instrument, item.result),
			Opts:       ports.AskOptions{Temperature: s.cfg.Temperature, Timeout: s.cfg.ProviderTimeout},
			Validate:   validateSentimentScore,
		}
	}

	results, err := s.harness.FanOut(ctx, reqs)
	if err != nil {
		return pctx, err
	}

	sums := map[council.Instrument]float64{}
	counts := map[council.Instrument]int{}
	for i, r := range results {
		instr := items[i].instrument
		if r.Status != harness.StatusOK {
			s.logger.Warn("sentiment score call failed", zap.String("instrument", string(instr)), zap.String("status", string(r.Status)))
			continue
		}
		score, err := parseSentimentScore(r.Payload)
		if err != nil {
			s.logger.Warn("sentiment score failed to parse", zap.String("instrument", string(instr)), zap.Error(err))
			continue
		}
		sums[instr] += score
		counts[instr]++
	}

	var overallSum float64
	var overallCount int
	for _, instr := range s.cfg.TradableUniverse {
		if counts[instr] == 0 {
			continue
		}
		mean := sums[instr] / float64(counts[instr])
		sentiment.PerInstrument[instr] = mean
		overallSum += mean
		overallCount++
	}
	if overallCount > 0 {
		sentiment.OverallScore = overallSum / float64(overallCount)
	}
	sentiment.Degraded = searchFailed || overallCount == 0

	if _, err := s.store.Append(ctx, pctx.WeekID, nil, council.EventMarketSentiment, sentiment); err != nil {
		s.logger.Warn("failed to persist market sentiment", zap.Error(err))
	}

	return pctx.With(pipeline.KeyMarketSentiment, sentiment), nil
}

func sentimentScorePrompt(instr council.Instrument, r ports.SearchResult) string {
	return fmt.Sprintf(
		"Score the macro sentiment this search result implies for %s on a scale from -1 (strongly bearish) to 1 (strongly bullish). Title: %q. Snippet: %q. Respond with JSON only: {\"score\": <number in [-1,1]>}.",
		instr, r.Title, r.Snippet,
	)
}

type sentimentScorePayload struct {
	Score float64 `json:"score"`
}

func validateSentimentScore(payload string) error {
	_, err := parseSentimentScore(payload)
	return err
}

func parseSentimentScore(payload string) (float64, error) {
	var parsed sentimentScorePayload
	if err := jsonx.ParseLenient(payload, &parsed); err != nil {
		if v, numErr := strconv.ParseFloat(strings.TrimSpace(payload), 64); numErr == nil {
			parsed.Score = v
		} else {
			return 0, err
		}
	}
	if parsed.Score < -1 || parsed.Score > 1 {
		return 0, fmt.Errorf("sentiment score %v outside [-1,1]", parsed.Score)
	}
	return parsed.Score, nil
}
