package interfaces

import (
	"context"

	"crypto-trading-assistant/internal/types"
)

type MarketData interface {
	Snapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error)
}

type Account interface {
	Balance(ctx context.Context) (float64, error)
}

type OrderExecutor interface {
	Submit(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)
}

// Exchange is the full adapter surface the assistant needs from a venue.
type Exchange interface {
	MarketData
	Account
	OrderExecutor
}
