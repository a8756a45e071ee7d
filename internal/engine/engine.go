// Package engine runs the analysis-and-decide cycle for one symbol.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/signal"
	"crypto-trading-assistant/internal/tradelog"
	"crypto-trading-assistant/internal/types"
)

const defaultCallTimeout = 10 * time.Second

// Deps are the collaborators of one Engine. Journal may be nil.
type Deps struct {
	Market     interfaces.MarketData
	Sentiment  interfaces.SentimentSource
	News       interfaces.NewsScorer
	Account    interfaces.Account
	Orders     interfaces.OrderExecutor
	Book       *position.Book
	Gate       *risk.Gate
	Aggregator *signal.Aggregator
	Journal    *tradelog.Journal
}

type Options struct {
	CallTimeout  time.Duration // per external call
	TrailingStop bool
}

type Engine struct {
	market    interfaces.MarketData
	sentiment interfaces.SentimentSource
	news      interfaces.NewsScorer
	account   interfaces.Account
	book      *position.Book
	agg       *signal.Aggregator

	orders *orderExecutor
	risk   *riskManager
	stops  *stopManager

	timeout time.Duration
	now     func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

func New(d Deps, opts Options) (*Engine, error) {
	switch {
	case d.Market == nil, d.Sentiment == nil, d.News == nil, d.Account == nil, d.Orders == nil:
		return nil, errors.Wrap(types.ErrConfiguration, "engine: market, sentiment, news, account and order collaborators are required")
	case d.Book == nil, d.Gate == nil, d.Aggregator == nil:
		return nil, errors.Wrap(types.ErrConfiguration, "engine: book, gate and aggregator are required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &Engine{
		market:    d.Market,
		sentiment: d.Sentiment,
		news:      d.News,
		account:   d.Account,
		book:      d.Book,
		agg:       d.Aggregator,
		orders:    newOrderExecutor(d.Orders, d.Journal, opts.CallTimeout),
		risk:      newRiskManager(d.Gate, d.Book),
		stops:     newStopManager(d.Book, d.Gate.Limits(), opts.TrailingStop),
		timeout:   opts.CallTimeout,
		now:       time.Now,
	}, nil
}

// Cycle never returns nil and never panics on a collaborator failure; the
// outcome and reason say what happened.
func (e *Engine) Cycle(ctx context.Context, symbol string) *types.CycleResult {
	start := e.now()
	res := &types.CycleResult{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		StartedAt:   start,
		Outcome:     types.OutcomeHold,
		ActionTaken: types.Hold,
	}
	e.run(ctx, symbol, res)
	res.Duration = e.now().Sub(start)
	return res
}

func (e *Engine) run(ctx context.Context, symbol string, res *types.CycleResult) {
	logger.Debug(ctx, "Starting trading cycle", "symbol", symbol, "cycle_id", res.ID)

	// 1. market data
	snap, err := call(ctx, e.timeout, "market data", func(ctx context.Context) (types.MarketSnapshot, error) {
		return e.market.Snapshot(ctx, symbol)
	})
	if err != nil {
		fail(ctx, res, "market data unavailable", err)
		return
	}
	res.Price = snap.Price

	// 2. open position: mark and check protective levels
	if p, events, ok := e.stops.mark(ctx, symbol, snap.Price); ok {
		res.Position = &p
		if len(events) > 0 {
			res.Triggers = events
			e.closeOnTrigger(ctx, symbol, p, events[0], snap, res)
			return
		}
	}

	// 3. inputs
	sent, err := call(ctx, e.timeout, "sentiment", func(ctx context.Context) (types.SentimentResult, error) {
		return e.sentiment.Sentiment(ctx, symbol, snap)
	})
	if err != nil {
		fail(ctx, res, "sentiment unavailable", err)
		return
	}
	res.Sentiment = &sent

	newsScore, err := call(ctx, e.timeout, "news", func(ctx context.Context) (float64, error) {
		return e.news.NewsScore(ctx, symbol)
	})
	if err != nil {
		fail(ctx, res, "news unavailable", err)
		return
	}

	// 4. aggregate
	sig := e.agg.Aggregate(signal.TechnicalScore(snap), sent.SentimentScore, newsScore)
	res.Signal = &sig
	e.orders.logDecision(ctx, symbol, sig, snap)

	atr, _ := snap.Indicators.Get(types.IndATR)
	if sig.Action == types.Hold {
		res.Reason = sig.Reasoning
		e.stops.trail(ctx, symbol, snap.Price, atr)
		return
	}

	// 5. balance
	balance, err := call(ctx, e.timeout, "balance", func(ctx context.Context) (float64, error) {
		return e.account.Balance(ctx)
	})
	if err != nil {
		fail(ctx, res, "account balance unavailable", err)
		return
	}

	// 6. risk gate
	now := e.now()
	decision := e.risk.evaluate(ctx, now, e.risk.request(symbol, sig, snap, sent, balance))
	res.Decision = &decision
	if !decision.Approved {
		res.Outcome = types.OutcomeRejected
		res.Reason = decision.Reason
		e.stops.trail(ctx, symbol, snap.Price, atr)
		return
	}

	// 7. and 8. submit, then record only what the exchange confirmed
	if decision.ClosesPosition {
		p, ok := e.book.Get(symbol)
		if !ok {
			fail(ctx, res, "close rejected", errors.Wrapf(types.ErrPositionNotFound, "close %s", symbol))
			res.Outcome = types.OutcomeRejected
			return
		}
		e.closePosition(ctx, symbol, p, fmt.Sprintf("signal %s", sig.Action), sig.Confidence, snap, res)
		return
	}
	e.openPosition(ctx, symbol, sig, decision, snap, atr, res)

	// 9. trailing stop
	e.stops.trail(ctx, symbol, snap.Price, atr)
}

func (e *Engine) openPosition(ctx context.Context, symbol string, sig types.Signal, decision types.RiskDecision, snap types.MarketSnapshot, atr float64, res *types.CycleResult) {
	side := positionSide(sig.Action)
	req := types.OrderRequest{
		Symbol:     symbol,
		Side:       entrySide(side),
		Size:       decision.MaxPositionSize,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		Tag:        "open",
	}
	order, err := e.orders.place(ctx, req)
	res.Order = &order
	if err != nil {
		fail(ctx, res, "order failed", err)
		return
	}

	fill := fillOr(order, snap.Price)
	stop, take := e.risk.levels(side, fill, atr)
	p, err := e.book.Open(ctx, symbol, side, dec(decision.MaxPositionSize), dec(fill), dec(stop), dec(take))
	if err != nil {
		// the fill happened; the book could not take it
		logger.ErrorWithErr(ctx, "Filled order could not be recorded", err, "symbol", symbol, "order_id", order.OrderID)
		fail(ctx, res, "position not recorded", err)
		return
	}
	e.risk.recordFill(e.now())
	e.orders.recordFill(ctx, tradelog.Entry{
		Symbol:     symbol,
		Side:       string(req.Side),
		Action:     tradelog.ActionOpen,
		Size:       decision.MaxPositionSize,
		Price:      fill,
		OrderID:    order.OrderID,
		Reason:     sig.Reasoning,
		Confidence: sig.Confidence,
		Extra:      map[string]any{"stop_loss": stop, "take_profit": take},
	})

	res.Position = &p
	res.Outcome = types.OutcomeOrderPlaced
	res.ActionTaken = sig.Action
	res.Reason = decision.Reason
}

func (e *Engine) closeOnTrigger(ctx context.Context, symbol string, p types.Position, ev types.TriggerEvent, snap types.MarketSnapshot, res *types.CycleResult) {
	e.closePosition(ctx, symbol, p, string(ev.Kind), 1.0, snap, res)
}

func (e *Engine) closePosition(ctx context.Context, symbol string, p types.Position, reason string, confidence float64, snap types.MarketSnapshot, res *types.CycleResult) {
	side := exitSide(p.Side)
	req := types.OrderRequest{
		Symbol: symbol,
		Side:   side,
		Size:   p.Size.InexactFloat64(),
		Tag:    "close",
	}
	order, err := e.orders.place(ctx, req)
	res.Order = &order
	if err != nil {
		fail(ctx, res, "closing order failed", err)
		return
	}

	fill := fillOr(order, snap.Price)
	closed, err := e.book.CloseAt(ctx, symbol, dec(fill), reason)
	if err != nil {
		logger.ErrorWithErr(ctx, "Filled closing order could not be recorded", err, "symbol", symbol, "order_id", order.OrderID)
		fail(ctx, res, "position not closed in book", err)
		return
	}
	pnl := closed.RealizedPnL.InexactFloat64()
	now := e.now()
	e.risk.recordRealized(now, pnl)
	e.risk.recordFill(now)
	e.orders.recordFill(ctx, tradelog.Entry{
		Symbol:      symbol,
		Side:        string(side),
		Action:      tradelog.ActionClose,
		Size:        req.Size,
		Price:       fill,
		OrderID:     order.OrderID,
		Reason:      reason,
		Confidence:  confidence,
		RealizedPnL: pnl,
	})

	res.Position = nil
	res.Closed = &closed
	res.Outcome = types.OutcomePositionClosed
	res.ActionTaken = actionFor(side)
	res.Reason = fmt.Sprintf("%s: closed %s %s at %.8f, realized %.2f", reason, closed.Side, symbol, fill, pnl)
}

// fail marks res as FAILED with a HOLD action.
func fail(ctx context.Context, res *types.CycleResult, what string, err error) {
	res.Outcome = types.OutcomeFailed
	res.ActionTaken = types.Hold
	res.Reason = fmt.Sprintf("%s: %v", what, err)
	if ctx.Err() != nil {
		res.Reason = fmt.Sprintf("%s: cancelled: %v", what, ctx.Err())
	}
	logger.ErrorWithErr(ctx, "Trading cycle failed", err, "symbol", res.Symbol, "cycle_id", res.ID, "step", what)
}
