package engine

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/types"
)

// call runs fn under its own timeout. Any failure, including the timeout,
// comes back wrapping ErrCollaboratorUnavailable.
func call[T any](ctx context.Context, timeout time.Duration, what string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(cctx)
	if err != nil {
		if errors.Is(err, types.ErrCollaboratorUnavailable) {
			return v, errors.Wrap(err, what)
		}
		return v, errors.Wrapf(types.ErrCollaboratorUnavailable, "%s: %v", what, err)
	}
	return v, nil
}

// positionSide is the side a fresh position opened by action would take.
func positionSide(action types.Action) types.Side {
	if action.IsSell() {
		return types.Short
	}
	return types.Long
}

func entrySide(side types.Side) types.OrderSide {
	if side == types.Short {
		return types.OrderSell
	}
	return types.OrderBuy
}

// exitSide is the order side that flattens a position.
func exitSide(side types.Side) types.OrderSide {
	if side == types.Short {
		return types.OrderBuy
	}
	return types.OrderSell
}

func actionFor(side types.OrderSide) types.Action {
	if side == types.OrderSell {
		return types.Sell
	}
	return types.Buy
}

// fillOr prefers the venue's fill price over the snapshot price.
func fillOr(res types.OrderResult, price float64) float64 {
	if res.FillPrice > 0 {
		return res.FillPrice
	}
	return price
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
