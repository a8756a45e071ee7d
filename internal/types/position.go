package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Position is an open exposure to one symbol. A zero StopLoss or TakeProfit
// means the level is not set.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit    decimal.Decimal `json:"take_profit"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p Position) HasStop() bool { return p.StopLoss.IsPositive() }
func (p Position) HasTake() bool { return p.TakeProfit.IsPositive() }

// PnLAt returns the side-adjusted P&L if the position were valued at price.
func (p Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice).Mul(p.Size)
	if p.Side == Short {
		return diff.Neg()
	}
	return diff
}

// Notional is size times the last marked price.
func (p Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.CurrentPrice)
}

type ClosedPosition struct {
	Position
	ExitPrice   decimal.Decimal `json:"exit_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`
	Reason      string          `json:"reason"`
}

type TriggerKind string

const (
	TriggerStopLoss   TriggerKind = "STOP_LOSS"
	TriggerTakeProfit TriggerKind = "TAKE_PROFIT"
)

type TriggerEvent struct {
	Symbol string          `json:"symbol"`
	Kind   TriggerKind     `json:"kind"`
	Level  decimal.Decimal `json:"level"`
	Price  decimal.Decimal `json:"price"`
}
