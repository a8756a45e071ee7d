package risk

import (
	"strings"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/types"
)

// Stop placement modes.
const (
	StopPct = "PCT"
	StopATR = "ATR"
)

// Limits are the configured risk bounds. Percentages are in percent units,
// so 5 means 5%.
type Limits struct {
	MaxPositionSize float64
	MinTradeSize    float64
	StopLossPct     float64
	TakeProfitPct   float64
	RiskPerTradePct float64
	MinConfidence   float64
	MaxDailyLossPct float64
	MaxPositions    int
	MaxDailyTrades  int // 0 disables the check
	StopMode        string
	ATRMult         float64
	MinTick         float64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize: 0.1,
		MinTradeSize:    0.001,
		StopLossPct:     2,
		TakeProfitPct:   4,
		RiskPerTradePct: 1,
		MinConfidence:   0.6,
		MaxDailyLossPct: 5,
		MaxPositions:    1,
		StopMode:        StopPct,
		ATRMult:         2,
	}
}

func (l Limits) Validate() error {
	switch {
	case l.MaxPositionSize <= 0:
		return errors.Wrapf(types.ErrConfiguration, "max_position_size must be positive, got %f", l.MaxPositionSize)
	case l.MinTradeSize < 0 || l.MinTradeSize > l.MaxPositionSize:
		return errors.Wrapf(types.ErrConfiguration, "min_trade_size must be in [0, max_position_size], got %f", l.MinTradeSize)
	case l.StopLossPct <= 0 || l.StopLossPct >= 100:
		return errors.Wrapf(types.ErrConfiguration, "stop_loss_pct must be in (0,100), got %.2f", l.StopLossPct)
	case l.TakeProfitPct <= 0:
		return errors.Wrapf(types.ErrConfiguration, "take_profit_pct must be positive, got %.2f", l.TakeProfitPct)
	case l.RiskPerTradePct <= 0 || l.RiskPerTradePct > 100:
		return errors.Wrapf(types.ErrConfiguration, "risk_per_trade_pct must be in (0,100], got %.2f", l.RiskPerTradePct)
	case l.MinConfidence < 0 || l.MinConfidence > 1:
		return errors.Wrapf(types.ErrConfiguration, "min_confidence must be in [0,1], got %.2f", l.MinConfidence)
	case l.MaxDailyLossPct <= 0 || l.MaxDailyLossPct > 100:
		return errors.Wrapf(types.ErrConfiguration, "max_daily_loss_pct must be in (0,100], got %.2f", l.MaxDailyLossPct)
	case l.MaxPositions < 1:
		return errors.Wrapf(types.ErrConfiguration, "max_positions must be at least 1, got %d", l.MaxPositions)
	case l.MaxDailyTrades < 0:
		return errors.Wrapf(types.ErrConfiguration, "max_daily_trades must not be negative, got %d", l.MaxDailyTrades)
	}
	mode := strings.ToUpper(l.StopMode)
	if mode != StopPct && mode != StopATR {
		return errors.Wrapf(types.ErrConfiguration, "stop mode must be PCT or ATR, got %q", l.StopMode)
	}
	if mode == StopATR && l.ATRMult <= 0 {
		return errors.Wrapf(types.ErrConfiguration, "atr_mult must be positive in ATR mode, got %.2f", l.ATRMult)
	}
	return nil
}
