package engine

import (
	"context"
	"time"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/types"
)

// riskManager builds gate requests from the book and the cycle's inputs.
type riskManager struct {
	gate *risk.Gate
	book *position.Book
}

func newRiskManager(gate *risk.Gate, book *position.Book) *riskManager {
	return &riskManager{gate: gate, book: book}
}

func (rm *riskManager) request(symbol string, sig types.Signal, snap types.MarketSnapshot, sent types.SentimentResult, balance float64) risk.Request {
	req := risk.Request{
		Symbol:         symbol,
		Signal:         sig,
		EntryPrice:     snap.Price,
		AccountBalance: balance,
		OpenPnL:        rm.book.OpenPnL().InexactFloat64(),
		OpenExposure:   rm.book.Exposure().InexactFloat64(),
		Volatility:     snap.Volatility(),
		SentimentRisk:  sent.RiskAssessment,
	}
	if atr, ok := snap.Indicators.Get(types.IndATR); ok {
		req.ATR = atr
	}
	if p, ok := rm.book.Get(symbol); ok {
		req.Position = &p
	}
	return req
}

func (rm *riskManager) evaluate(ctx context.Context, now time.Time, req risk.Request) types.RiskDecision {
	d := rm.gate.Evaluate(now, req)
	if !d.Approved {
		logger.Risk(ctx, req.Symbol, "TRADE_REJECTED",
			"check", d.Check,
			"reason", d.Reason,
			"action", req.Signal.Action,
			"confidence", req.Signal.Confidence,
			"risk_level", d.RiskLevel,
		)
		return d
	}
	logger.Debug(ctx, "Risk gate approved trade",
		"symbol", req.Symbol,
		"size", d.MaxPositionSize,
		"stop_loss", d.StopLoss,
		"take_profit", d.TakeProfit,
		"closes_position", d.ClosesPosition,
		"close_size", d.CloseSize,
		"risk_level", d.RiskLevel,
	)
	return d
}

// levels re-anchors stop and take on the actual fill price.
func (rm *riskManager) levels(side types.Side, fill, atr float64) (stop, take float64) {
	return risk.Levels(side, fill, atr, rm.gate.Limits())
}

func (rm *riskManager) recordFill(now time.Time) { rm.gate.RecordTrade(now) }

func (rm *riskManager) recordRealized(now time.Time, pnl float64) { rm.gate.RecordRealized(now, pnl) }
