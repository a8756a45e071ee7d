package engine

import (
	"context"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/types"
)

// stopManager marks open positions, detects protective-level hits and trails
// the stop.
type stopManager struct {
	book     *position.Book
	limits   risk.Limits
	trailing bool
}

func newStopManager(book *position.Book, limits risk.Limits, trailing bool) *stopManager {
	return &stopManager{book: book, limits: limits, trailing: trailing}
}

// mark values the symbol's position at price and returns any fired levels.
// ok is false when there is no open position.
func (sm *stopManager) mark(ctx context.Context, symbol string, price float64) (types.Position, []types.TriggerEvent, bool) {
	p, err := sm.book.MarkToMarket(symbol, dec(price))
	if errors.Is(err, types.ErrPositionNotFound) {
		return types.Position{}, nil, false
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to mark position", err, "symbol", symbol)
		return types.Position{}, nil, false
	}

	events := position.Triggers(p, dec(price))
	for _, ev := range events {
		logger.Warn(ctx, "Protective level triggered",
			"symbol", symbol,
			"event", string(ev.Kind)+"_TRIGGERED",
			"current_price", price,
			"level", ev.Level.String(),
			"position_side", p.Side,
			"position_size", p.Size.String(),
			"entry_price", p.EntryPrice.String(),
			"unrealized_pnl", p.UnrealizedPnL.String(),
		)
	}
	return p, events, true
}

// trail tightens the stop to the trailing level at price. It is a no-op when
// trailing is off or the symbol has no position.
func (sm *stopManager) trail(ctx context.Context, symbol string, price, atr float64) {
	if !sm.trailing || price <= 0 {
		return
	}
	p, ok := sm.book.Get(symbol)
	if !ok {
		return
	}
	cand := risk.TrailingStop(p.Side, price, atr, sm.limits)
	moved, err := sm.book.TightenStop(ctx, symbol, dec(cand))
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to trail stop", err, "symbol", symbol)
		return
	}
	if moved {
		logger.Debug(ctx, "Trailing stop updated",
			"symbol", symbol,
			"old_stop", p.StopLoss.String(),
			"new_stop", cand,
			"current_price", price,
			"atr", atr,
		)
	}
}
