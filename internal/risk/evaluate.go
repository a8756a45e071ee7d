package risk

import (
	"fmt"
	"math"
	"strings"

	"crypto-trading-assistant/internal/types"
)

// Check names reported in RiskDecision.Check.
const (
	CheckSignal           = "signal"
	CheckPrice            = "price"
	CheckPositionConflict = "position_conflict"
	CheckDailyLoss        = "daily_loss_limit"
	CheckConfidence       = "confidence_floor"
	CheckPositionSize     = "position_size"
	CheckExposure         = "portfolio_exposure"
	CheckDailyTrades      = "daily_trade_limit"
	CheckApproved         = "approved"
)

const exposureEpsilon = 1e-12

// Request carries everything one evaluation needs. DailyPnL and TradesToday
// are filled by Gate when evaluating through it.
type Request struct {
	Symbol         string
	Signal         types.Signal
	EntryPrice     float64
	Position       *types.Position
	AccountBalance float64
	DailyPnL       float64
	OpenPnL        float64
	OpenExposure   float64
	TradesToday    int
	Volatility     float64
	ATR            float64
	SentimentRisk  types.RiskLevel
}

// closesPosition reports whether action is the opposite side of pos.
func closesPosition(pos *types.Position, action types.Action) bool {
	if pos == nil {
		return false
	}
	return (pos.Side == types.Long && action.IsSell()) || (pos.Side == types.Short && action.IsBuy())
}

// Evaluate runs the checks in order and stops at the first failure. A signal
// that closes the open position only passes the conflict and confidence checks
// and is sized to the whole position.
func Evaluate(req Request, l Limits) types.RiskDecision {
	sig := req.Signal
	level := Level(req, l)

	reject := func(check, reason string) types.RiskDecision {
		return types.RiskDecision{Approved: false, Check: check, Reason: reason, RiskLevel: level}
	}

	if !sig.Action.IsBuy() && !sig.Action.IsSell() {
		return reject(CheckSignal, fmt.Sprintf("no actionable signal (%s)", sig.Action))
	}
	if req.EntryPrice <= 0 || math.IsNaN(req.EntryPrice) {
		return reject(CheckPrice, fmt.Sprintf("invalid entry price %f", req.EntryPrice))
	}

	// 1. existing position
	closing := false
	if req.Position != nil {
		if !closesPosition(req.Position, sig.Action) {
			return reject(CheckPositionConflict, fmt.Sprintf("%s position already open for %s; %s does not close it",
				req.Position.Side, req.Symbol, sig.Action))
		}
		closing = true
	}

	// 2. daily loss
	if !closing {
		limit := req.AccountBalance * l.MaxDailyLossPct / 100
		if req.DailyPnL < -limit {
			return reject(CheckDailyLoss, fmt.Sprintf("daily loss limit reached: pnl %.2f below -%.2f (%.2f%% of %.2f)",
				req.DailyPnL, limit, l.MaxDailyLossPct, req.AccountBalance))
		}
	}

	// 3. confidence
	if sig.Confidence < l.MinConfidence {
		return reject(CheckConfidence, fmt.Sprintf("confidence %.3f below minimum %.3f", sig.Confidence, l.MinConfidence))
	}

	if closing {
		held := req.Position.Size.InexactFloat64()
		return types.RiskDecision{
			Approved:        true,
			Check:           CheckApproved,
			Reason:          fmt.Sprintf("%s closes open %s position", sig.Action, req.Position.Side),
			MaxPositionSize: math.Min(held, l.MaxPositionSize),
			CloseSize:       held,
			StopLoss:        req.Position.StopLoss.InexactFloat64(),
			TakeProfit:      req.Position.TakeProfit.InexactFloat64(),
			RiskLevel:       level,
			ClosesPosition:  true,
		}
	}

	// 4. sizing
	side := types.Long
	if sig.Action.IsSell() {
		side = types.Short
	}
	stop, take := Levels(side, req.EntryPrice, req.ATR, l)
	dist := math.Abs(req.EntryPrice - stop)
	if dist <= 0 {
		return reject(CheckPositionSize, "zero distance between entry and stop loss")
	}
	if req.AccountBalance <= 0 {
		return reject(CheckPositionSize, fmt.Sprintf("account balance %.2f leaves nothing to size", req.AccountBalance))
	}
	riskAmount := req.AccountBalance * l.RiskPerTradePct / 100
	size := math.Min(math.Max(riskAmount/dist, l.MinTradeSize), l.MaxPositionSize)
	if balanceCap := req.AccountBalance / req.EntryPrice; size > balanceCap {
		size = balanceCap
	}
	if size <= 0 || size < l.MinTradeSize {
		return reject(CheckPositionSize, fmt.Sprintf("size %.8f below minimum trade size %.8f", size, l.MinTradeSize))
	}

	// 5. exposure
	maxExposure := l.MaxPositionSize * float64(l.MaxPositions)
	if req.OpenExposure+size > maxExposure+exposureEpsilon {
		return reject(CheckExposure, fmt.Sprintf("exposure %.8f + %.8f exceeds %.8f (%d positions x %.8f)",
			req.OpenExposure, size, maxExposure, l.MaxPositions, l.MaxPositionSize))
	}

	// 6. trade count
	if l.MaxDailyTrades > 0 && req.TradesToday >= l.MaxDailyTrades {
		return reject(CheckDailyTrades, fmt.Sprintf("daily trade limit %d reached", l.MaxDailyTrades))
	}

	return types.RiskDecision{
		Approved:        true,
		Check:           CheckApproved,
		Reason:          fmt.Sprintf("%s approved: size %.8f, stop %.8f, take %.8f", sig.Action, size, stop, take),
		MaxPositionSize: size,
		StopLoss:        stop,
		TakeProfit:      take,
		RiskLevel:       level,
	}
}

// Levels computes stop-loss and take-profit for a new position on side.
func Levels(side types.Side, entry, atr float64, l Limits) (stop, take float64) {
	stopDist := entry * l.StopLossPct / 100
	if strings.ToUpper(l.StopMode) == StopATR && atr > 0 {
		stopDist = l.ATRMult * atr
	}
	takeDist := entry * l.TakeProfitPct / 100
	if side == types.Short {
		stop, take = entry+stopDist, entry-takeDist
	} else {
		stop, take = entry-stopDist, entry+takeDist
	}
	return roundToTick(stop, l.MinTick), roundToTick(take, l.MinTick)
}

// TrailingStop returns the stop a trailing rule would place at price.
func TrailingStop(side types.Side, price, atr float64, l Limits) float64 {
	stop, _ := Levels(side, price, atr, l)
	return stop
}

// Level labels risk for reporting. It never gates a decision.
func Level(req Request, l Limits) types.RiskLevel {
	points := 0

	if limit := req.AccountBalance * l.MaxDailyLossPct / 100; limit > 0 && req.DailyPnL < 0 {
		used := -req.DailyPnL / limit
		switch {
		case used >= 0.8:
			points += 2
		case used >= 0.5:
			points++
		}
	}

	switch {
	case req.Volatility >= 0.10:
		points += 2
	case req.Volatility >= 0.05:
		points++
	}

	if req.Signal.Confidence < 0.7 {
		points++
	}
	if req.SentimentRisk == types.RiskHigh {
		points++
	}

	switch {
	case points >= 4:
		return types.RiskHigh
	case points >= 2:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

func roundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
