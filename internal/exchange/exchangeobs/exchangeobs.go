package exchangeobs

import (
	"context"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/trace"
	"crypto-trading-assistant/internal/types"
)

// observableExchange wraps an Exchange with observability (logging & tracing)
type observableExchange struct {
	ex interfaces.Exchange
}

var _ interfaces.Exchange = (*observableExchange)(nil)

// Wrap wraps an exchange with observability middleware
func Wrap(ex interfaces.Exchange) interfaces.Exchange {
	return &observableExchange{ex: ex}
}

func (o *observableExchange) Snapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Snapshot")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching market snapshot", "symbol", symbol)

	snap, err := o.ex.Snapshot(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch snapshot", err, "symbol", symbol)
		return types.MarketSnapshot{}, err
	}

	logger.DebugSkip(ctx, 1, "Snapshot fetched successfully",
		"symbol", symbol,
		"price", snap.Price,
		"indicators", len(snap.Indicators),
	)
	return snap, nil
}

func (o *observableExchange) Balance(ctx context.Context) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Balance")
	defer span.End()

	bal, err := o.ex.Balance(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Balance fetched successfully", "balance", bal)
	return bal, nil
}

// Submit places an order with observability
func (o *observableExchange) Submit(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Submit")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"size", req.Size,
		"tag", req.Tag,
	)

	res, err := o.ex.Submit(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"size", req.Size,
		)
		return types.OrderResult{}, err
	}
	if !res.Success {
		logger.WarnSkip(ctx, 1, "Order not filled",
			"symbol", req.Symbol,
			"order_id", res.OrderID,
			"error", res.Error,
		)
		return res, nil
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", res.OrderID,
		"fill_price", res.FillPrice,
	)
	return res, nil
}
