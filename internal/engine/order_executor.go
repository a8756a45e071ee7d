package engine

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/tradelog"
	"crypto-trading-assistant/internal/types"
)

// orderExecutor submits orders and journals confirmed fills and decisions.
type orderExecutor struct {
	orders  interfaces.OrderExecutor
	journal *tradelog.Journal
	timeout time.Duration
}

func newOrderExecutor(orders interfaces.OrderExecutor, journal *tradelog.Journal, timeout time.Duration) *orderExecutor {
	return &orderExecutor{orders: orders, journal: journal, timeout: timeout}
}

// place submits req. A transport failure wraps ErrCollaboratorUnavailable; a
// venue that answers without filling yields the result and a plain error.
func (oe *orderExecutor) place(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	res, err := call(ctx, oe.timeout, "submit order", func(ctx context.Context) (types.OrderResult, error) {
		return oe.orders.Submit(ctx, req)
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"size", req.Size,
			"tag", req.Tag,
		)
		return types.OrderResult{Success: false, Error: err.Error()}, err
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "order not confirmed"
		}
		logger.Warn(ctx, "Order not confirmed by exchange",
			"symbol", req.Symbol,
			"side", req.Side,
			"size", req.Size,
			"error", reason,
		)
		return res, errors.Errorf("order rejected by exchange: %s", reason)
	}
	return res, nil
}

// recordFill journals a confirmed fill. Journal failures never fail a cycle.
func (oe *orderExecutor) recordFill(ctx context.Context, e tradelog.Entry) {
	logger.Trade(ctx, e.Symbol, e.Side, e.Size, e.Price, e.OrderID, "action", e.Action, "reason", e.Reason)
	if oe.journal == nil {
		return
	}
	if err := oe.journal.Append(e); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal trade", err, "symbol", e.Symbol, "order_id", e.OrderID)
	}
}

func (oe *orderExecutor) logDecision(ctx context.Context, symbol string, sig types.Signal, snap types.MarketSnapshot) {
	logger.Decision(ctx, symbol, string(sig.Action), sig.Confidence, sig.Reasoning,
		"combined_score", sig.CombinedScore,
		"technical", sig.TechnicalScore,
		"sentiment", sig.SentimentScore,
		"news", sig.NewsScore,
		"missing", sig.Missing,
	)
	if oe.journal == nil {
		return
	}
	err := oe.journal.AppendDecision(tradelog.DecisionEntry{
		Symbol:        symbol,
		Action:        string(sig.Action),
		Reason:        sig.Reasoning,
		Confidence:    sig.Confidence,
		CombinedScore: sig.CombinedScore,
		Price:         snap.Price,
		Indicators:    snap.Indicators,
		Missing:       sig.Missing,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal decision", err, "symbol", symbol)
	}
}
