package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/anonymizer"
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

// PeerReviewStage anonymizes the week's pitches, then asks every
// reviewer model to critique every pitch but its own (N-1 reviews per
// reviewer), expecting a JSON array response. A reviewer that instead
// returns a single review object is accepted as a degraded shape
// (flagged, not rejected) per spec.md's resolved peer-review Open
// Question; missing or duplicate coverage is logged but does not fail
// the stage, since the Chairman stage can still synthesize from
// partial review coverage.
type PeerReviewStage struct {
	cfg     *config.Config
	harness *harness.Harness
	store   eventstore.Gateway
	logger  *zap.Logger
}

func NewPeerReviewStage(cfg *config.Config, provider ports.LLMProvider, store eventstore.Gateway, logger *zap.Logger) *PeerReviewStage {
	return &PeerReviewStage{
		cfg:     cfg,
		harness: harness.New(provider, cfg.MaxConcurrency, logger),
		store:   store,
		logger:  logger.Named("stages.peerreview"),
	}
}

func (s *PeerReviewStage) Name() string { return "peer_review" }
func (s *PeerReviewStage) Requires() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyPMPitches}
}
func (s *PeerReviewStage) Produces() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyAnonymizedPitches, pipeline.KeyPeerReviews}
}

func (s *PeerReviewStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	pitchesVal, _ := pctx.Get(pipeline.KeyPMPitches)
	pitches, ok := pitchesVal.([]council.PMPitch)
	if !ok || len(pitches) == 0 {
		return pctx, &councilerr.PreconditionError{Stage: s.Name(), Missing: "pm_pitches"}
	}

	anonPitches, mapping := anonymizer.Anonymize(pitches)

	reqs := make([]harness.Request, len(s.cfg.ReviewerModels))
	for i, reviewer := range s.cfg.ReviewerModels {
		ownLabel, _ := mapping.LabelFor(pitchIDForReviewer(pitches, reviewer))
		reqs[i] = harness.Request{
			ProviderID: reviewer,
			ModelID:    reviewer,
			Prompt:     peerReviewPrompt(pctx.WeekID, reviewer, ownLabel, anonPitches),
			Opts:       ports.AskOptions{Temperature: s.cfg.Temperature, Timeout: s.cfg.ProviderTimeout},
			Validate:   validateReviewsDraft,
		}
	}

	results, err := s.harness.FanOut(ctx, reqs)
	if err != nil {
		return pctx, err
	}

	var allReviews []council.PeerReview
	for i, r := range results {
		reviewer := s.cfg.ReviewerModels[i]
		if r.Status != harness.StatusOK {
			s.logger.Warn("reviewer provider failed", zap.String("reviewer_model", reviewer), zap.String("status", string(r.Status)))
			continue
		}

		reviews, degraded := parseReviews(r.Payload)
		if len(reviews) == 0 {
			s.logger.Warn("reviewer produced no parseable reviews", zap.String("reviewer_model", reviewer))
			continue
		}

		seen := map[string]bool{}
		for _, rv := range reviews {
			rv.ReviewID = uuid.New().String()
			rv.WeekId = pctx.WeekID
			rv.ReviewerModel = reviewer
			rv.DegradedShape = degraded

			if err := validate.PeerReview(rv); err != nil {
				s.logger.Warn("review failed validation", zap.String("reviewer_model", reviewer), zap.String("target_label", rv.TargetLabel), zap.Error(err))
				continue
			}
			if _, ok := mapping.PitchIDFor(rv.TargetLabel); !ok {
				s.logger.Warn("review targets unknown label", zap.String("reviewer_model", reviewer), zap.String("target_label", rv.TargetLabel))
				continue
			}
			if seen[rv.TargetLabel] {
				s.logger.Warn("duplicate review target dropped", zap.String("reviewer_model", reviewer), zap.String("target_label", rv.TargetLabel))
				continue
			}
			seen[rv.TargetLabel] = true
			allReviews = append(allReviews, rv)

			if _, err := s.store.Append(ctx, pctx.WeekID, nil, council.EventPeerReview, rv); err != nil {
				s.logger.Warn("failed to persist peer review", zap.Error(err))
			}
		}

		expected := mapping.Size()
		if ownLabel, ok := mapping.LabelFor(pitchIDForReviewer(pitches, reviewer)); ok && ownLabel != "" {
			expected--
		}
		if len(seen) < expected {
			s.logger.Warn("reviewer coverage incomplete", zap.String("reviewer_model", reviewer), zap.Int("covered", len(seen)), zap.Int("expected", expected))
		}
	}

	if len(allReviews) == 0 {
		return pctx, &councilerr.ContractError{Stage: s.Name(), Message: "no reviewer produced a valid review"}
	}

	next := pctx.With(pipeline.KeyAnonymizedPitches, anonPitches)
	next = next.With(pipeline.KeyPeerReviews, allReviews)
	return next, nil
}

// validateReviewsDraft is the harness repair-loop callback: it accepts
// either the contracted array shape or the single-object degraded
// shape, rejecting only a payload that yields no well-formed review at
// all.
func validateReviewsDraft(payload string) error {
	reviews, _ := parseReviews(payload)
	if len(reviews) == 0 {
		return fmt.Errorf("no parseable review object or array found")
	}
	for _, rv := range reviews {
		if err := validate.PeerReview(rv); err != nil {
			return err
		}
	}
	return nil
}

func pitchIDForReviewer(pitches []council.PMPitch, reviewerModel string) string {
	for _, p := range pitches {
		if p.PMModel == reviewerModel {
			return p.PitchID
		}
	}
	return ""
}

// parseReviews accepts either the contracted JSON array of reviews or
// a single degraded review object, reporting which shape it saw.
func parseReviews(payload string) ([]council.PeerReview, bool) {
	arrayText := jsonx.ExtractArray(payload)
	if arrayText != "" {
		var reviews []council.PeerReview
		if err := jsonx.ParseLenient(arrayText, &reviews); err == nil && len(reviews) > 0 {
			return reviews, false
		}
	}

	var reviews []council.PeerReview
	if err := jsonx.ParseLenient(payload, &reviews); err == nil && len(reviews) > 0 {
		return reviews, false
	}

	for _, obj := range jsonx.ExtractObjects(payload) {
		var single council.PeerReview
		if err := jsonx.ParseStrict(obj, &single); err == nil && single.TargetLabel != "" {
			return []council.PeerReview{single}, true
		}
	}
	return nil, false
}

func peerReviewPrompt(weekID council.WeekId, reviewer, ownLabel string, pitches []council.AnonymizedPitch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are reviewer %s. Week %s. Review every pitch below except your own (%s). Respond with a JSON array of review objects, one per pitch, each with target_label, scores (clarity, edge_plausibility, timing_catalyst, risk_definition, indicator_integrity, originality, tradeability, each 1-10), best_argument_against, one_flip_condition, suggested_fix.\n", reviewer, weekID, ownLabel)
	for _, p := range pitches {
		if p.Label == ownLabel {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s %s, conviction %.2f, risk_profile %s, thesis: %v\n", p.Label, p.Instrument, p.Direction, p.Conviction, p.RiskProfile, p.ThesisBullets)
	}
	return sb.String()
}
