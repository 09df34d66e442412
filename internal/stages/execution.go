package stages

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/internal/ports"
	"github.com/llmcouncil/macrotrader/pkg/council"
	"github.com/llmcouncil/macrotrader/pkg/utils"
)

// defaultTickSize is the price granularity bracket orders are rounded
// to when no instrument-specific tick table is configured.
var defaultTickSize = decimal.NewFromFloat(0.01)

// ExecutionStage turns the week's PM pitches and (in full mode) the
// chairman decision into bracket orders and dispatches them
// concurrently to each instrument's isolated sub-account, grounded on
// internal/execution/executor.go's bracket-order construction
// (entry + stop-loss + take-profit) and its per-account retry/paper
// -trading-fallback idiom, generalized from a single live exchange to
// N isolated brokerage accounts dispatched in parallel.
type ExecutionStage struct {
	cfg      *config.Config
	broker   ports.BrokerClient
	snapshot ports.MarketSnapshot
	store    eventstore.Gateway
	logger   *zap.Logger
}

func NewExecutionStage(cfg *config.Config, broker ports.BrokerClient, snapshot ports.MarketSnapshot, store eventstore.Gateway, logger *zap.Logger) *ExecutionStage {
	return &ExecutionStage{cfg: cfg, broker: broker, snapshot: snapshot, store: store, logger: logger.Named("stages.execution")}
}

func (s *ExecutionStage) Name() string { return "execution" }
func (s *ExecutionStage) Requires() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyPMPitches}
}
func (s *ExecutionStage) Produces() []pipeline.Key {
	return []pipeline.Key{pipeline.KeyExecutionResults}
}

func (s *ExecutionStage) Execute(ctx context.Context, pctx pipeline.Context) (pipeline.Context, error) {
	pitchesVal, _ := pctx.Get(pipeline.KeyPMPitches)
	pitches, _ := pitchesVal.([]council.PMPitch)

	view, err := s.snapshot.Snapshot(ctx, pctx.WeekID.Time())
	if err != nil {
		return pctx, &councilerr.ProviderTransportError{ProviderID: "market_snapshot", Err: err}
	}

	equity := view.AccountEquity
	if equity <= 0 {
		equity = s.cfg.AccountEquity
	}

	var orders []orderPlan
	var skipped []council.ExecutionResult
	for _, p := range pitches {
		if p.Direction == council.DirectionFlat {
			continue
		}
		order, ok := buildBracketOrder(p.AccountId, p.Instrument, p.Direction, p.RiskProfile, p.Conviction, equity, view.Prices[p.Instrument])
		if !ok {
			skipped = append(skipped, council.ExecutionResult{TradeID: uuid.New().String(), AccountId: p.AccountId, Status: council.ExecSkipped, Message: "qty_zero"})
			continue
		}
		orders = append(orders, orderPlan{accountID: p.AccountId, order: order})
	}

	if s.cfg.Mode == config.ModeFull {
		if decisionVal, ok := pctx.Get(pipeline.KeyChairmanDecision); ok {
			decision := decisionVal.(council.ChairmanDecision)
			if decision.Direction != council.DirectionFlat {
				order, ok := buildBracketOrder(s.cfg.ChairmanAccount, decision.Instrument, decision.Direction, decision.RiskProfile, decision.Conviction, equity, view.Prices[decision.Instrument])
				if !ok {
					skipped = append(skipped, council.ExecutionResult{TradeID: uuid.New().String(), AccountId: s.cfg.ChairmanAccount, Status: council.ExecSkipped, Message: "qty_zero"})
				} else {
					orders = append(orders, orderPlan{accountID: s.cfg.ChairmanAccount, order: order})
				}
			}
		}
	}

	dispatched := make([]council.ExecutionResult, len(orders))
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, plan := range orders {
		i, plan := i, plan
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				dispatched[i] = council.ExecutionResult{TradeID: uuid.New().String(), AccountId: plan.accountID, Status: council.ExecError, Message: err.Error()}
				return nil
			}
			defer sem.Release(1)
			dispatched[i] = s.dispatch(gctx, plan)
			return nil
		})
	}
	_ = g.Wait()

	results := append(skipped, dispatched...)

	for _, res := range results {
		evType := council.EventExecutionResult
		if res.Status == council.ExecError {
			evType = council.EventExecutionError
		} else if res.Status == council.ExecSkipped {
			evType = council.EventExecutionSkipped
		}
		acct := res.AccountId
		if _, err := s.store.Append(ctx, pctx.WeekID, &acct, evType, res); err != nil {
			s.logger.Warn("failed to persist execution result", zap.Error(err))
		}
	}

	return pctx.With(pipeline.KeyExecutionResults, results), nil
}

type orderPlan struct {
	accountID council.AccountId
	order     council.Order
}

func (s *ExecutionStage) dispatch(ctx context.Context, plan orderPlan) council.ExecutionResult {
	tradeID := uuid.New().String()
	ack, err := s.broker.PlaceBracket(ctx, plan.order)
	if err != nil {
		s.logger.Warn("broker rejected order", zap.String("account_id", string(plan.accountID)), zap.Error(err))
		return council.ExecutionResult{TradeID: tradeID, AccountId: plan.accountID, Status: council.ExecError, Message: err.Error()}
	}
	return council.ExecutionResult{TradeID: tradeID, AccountId: plan.accountID, Status: council.ExecSubmitted, OrderID: ack.OrderID}
}

// sizeFactor maps a pitch or decision's |conviction| to the fraction
// of account equity the Execution stage commits to the position, a
// fixed step function over the conviction magnitude: the strongest
// convictions (>=1.5) size to 20% of equity, moderate ones (>=1.0) to
// 10%, any non-zero conviction below that to 5%, and zero conviction
// commits nothing.
func sizeFactor(conviction float64) decimal.Decimal {
	abs := conviction
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1.5:
		return decimal.NewFromFloat(0.20)
	case abs >= 1.0:
		return decimal.NewFromFloat(0.10)
	case abs > 0:
		return decimal.NewFromFloat(0.05)
	default:
		return decimal.Zero
	}
}

// buildBracketOrder derives an order side from direction, a quantity
// from conviction-scaled account equity, and stop loss/take profit
// prices from the risk profile's fixed percentage pair, mirroring
// executor.go's bracket construction (entry plus SL and TP legs
// derived from the same reference price). The second return value is
// false when the computed quantity is zero, meaning the caller should
// skip dispatch rather than submit a zero-quantity order.
func buildBracketOrder(accountID council.AccountId, instrument council.Instrument, direction council.Direction, profile council.RiskProfile, conviction, accountEquity, price float64) (council.Order, bool) {
	side := council.OrderSideBuy
	if direction == council.DirectionShort {
		side = council.OrderSideSell
	}

	triples := council.DefaultRiskProfiles()
	triple := triples[profile]
	refPrice := decimal.NewFromFloat(price)

	factor := sizeFactor(conviction)
	qty := int64(0)
	if refPrice.IsPositive() {
		targetNotional := decimal.NewFromFloat(accountEquity).Mul(factor)
		qty = targetNotional.Div(refPrice).IntPart()
	}
	if qty <= 0 {
		return council.Order{}, false
	}

	var tp, sl decimal.Decimal
	if side == council.OrderSideBuy {
		tp = refPrice.Mul(decimal.NewFromInt(1).Add(triple.TakeProfitPct))
		sl = refPrice.Mul(decimal.NewFromInt(1).Sub(triple.StopLossPct))
	} else {
		tp = refPrice.Mul(decimal.NewFromInt(1).Sub(triple.TakeProfitPct))
		sl = refPrice.Mul(decimal.NewFromInt(1).Add(triple.StopLossPct))
	}

	tp = utils.RoundToTickSize(utils.MaxDecimal(tp, decimal.Zero), defaultTickSize)
	sl = utils.ClampDecimal(utils.RoundToTickSize(sl, defaultTickSize), decimal.Zero, refPrice.Mul(decimal.NewFromInt(2)))

	return council.Order{
		AccountId:       accountID,
		Symbol:          instrument,
		Side:            side,
		Qty:             qty,
		OrderType:       council.OrderTypeMarket,
		TimeInForce:     "day",
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
	}, true
}
