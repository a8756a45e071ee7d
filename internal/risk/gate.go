package risk

import (
	"sync"
	"time"

	"crypto-trading-assistant/internal/types"
)

const dayLayout = "2006-01-02"

// DailyState is the gate's view of the current trading day.
type DailyState struct {
	Day         string  `json:"day"`
	RealizedPnL float64 `json:"realized_pnl"`
	Trades      int     `json:"trades"`
}

// Gate owns the only cross-cycle risk state: realized P&L and the trade count
// for the current trading day. The day rolls over when the calendar date in
// loc differs from the date of the last reset, whatever the cycle interval.
type Gate struct {
	limits Limits
	loc    *time.Location

	mu       sync.Mutex
	day      string
	realized float64
	trades   int
}

func NewGate(limits Limits, loc *time.Location) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{limits: limits, loc: loc}, nil
}

func (g *Gate) Limits() Limits { return g.limits }

func (g *Gate) Location() *time.Location { return g.loc }

// rollover must be called with mu held.
func (g *Gate) rollover(now time.Time) {
	d := now.In(g.loc).Format(dayLayout)
	if d != g.day {
		g.day = d
		g.realized = 0
		g.trades = 0
	}
}

// Evaluate fills DailyPnL as today's realized P&L plus req.OpenPnL and the
// trade count, then runs Evaluate.
func (g *Gate) Evaluate(now time.Time, req Request) types.RiskDecision {
	g.mu.Lock()
	g.rollover(now)
	req.DailyPnL = g.realized + req.OpenPnL
	req.TradesToday = g.trades
	g.mu.Unlock()

	return Evaluate(req, g.limits)
}

func (g *Gate) RecordTrade(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	g.trades++
}

func (g *Gate) RecordRealized(now time.Time, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	g.realized += pnl
}

func (g *Gate) Snapshot(now time.Time) DailyState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(now)
	return DailyState{Day: g.day, RealizedPnL: g.realized, Trades: g.trades}
}
