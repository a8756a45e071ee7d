package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/types"
)

// DefaultStreamCooldown spaces stream-triggered cycles for one symbol.
const DefaultStreamCooldown = 30 * time.Second

var (
	ErrCycleInFlight = errors.New("cycle already in flight")
	ErrUnknownSymbol = errors.New("symbol not configured")
)

// CycleObserver sees every finished cycle, typically for metrics.
type CycleObserver interface {
	ObserveCycle(res types.CycleResult)
}

type RunnerOption func(*Runner)

func WithRecorders(recs ...interfaces.CycleRecorder) RunnerOption {
	return func(r *Runner) { r.recorders = append(r.recorders, recs...) }
}

func WithNotifier(n interfaces.Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

func WithObserver(o CycleObserver) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithStreamCooldown sets the minimum gap between cycles WatchPrices starts
// for the same symbol.
func WithStreamCooldown(d time.Duration) RunnerOption {
	return func(r *Runner) { r.cooldown = d }
}

// Runner schedules cycles. Two cycles for the same symbol never overlap;
// different symbols may run concurrently when triggered manually.
type Runner struct {
	engine    interfaces.Engine
	symbols   []string
	interval  time.Duration
	recorders []interfaces.CycleRecorder
	notifier  interfaces.Notifier
	observers []CycleObserver

	locks map[string]*sync.Mutex

	mu   sync.RWMutex
	last map[string]types.CycleResult

	cooldown   time.Duration
	streamNext map[string]time.Time // earliest next stream-triggered cycle
	now        func() time.Time
}

func NewRunner(eng interfaces.Engine, symbols []string, interval time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:   eng,
		symbols:  append([]string(nil), symbols...),
		interval: interval,
		locks:    make(map[string]*sync.Mutex, len(symbols)),
		last:     make(map[string]types.CycleResult, len(symbols)),

		cooldown:   DefaultStreamCooldown,
		streamNext: make(map[string]time.Time, len(symbols)),
		now:        time.Now,
	}
	for _, s := range symbols {
		r.locks[s] = &sync.Mutex{}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) Symbols() []string { return append([]string(nil), r.symbols...) }

// Run cycles every symbol in sequence, immediately and then on each tick,
// until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	logger.Info(ctx, "Runner started", "symbols", r.symbols, "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle per symbol. A symbol whose previous cycle is still
// in flight is skipped.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, s := range r.symbols {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.Trigger(ctx, s); errors.Is(err, ErrCycleInFlight) {
			logger.Debug(ctx, "Skipping symbol, cycle in flight", "symbol", s)
		}
	}
}

// Trigger runs one cycle for symbol now. It refuses rather than queues when a
// cycle for the symbol is already running.
func (r *Runner) Trigger(ctx context.Context, symbol string) (*types.CycleResult, error) {
	l, ok := r.locks[symbol]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSymbol, "trigger %s", symbol)
	}
	if !l.TryLock() {
		return nil, errors.Wrapf(ErrCycleInFlight, "trigger %s", symbol)
	}
	defer l.Unlock()

	res := r.engine.Cycle(ctx, symbol)
	r.finish(ctx, *res)
	return res, nil
}

func (r *Runner) finish(ctx context.Context, res types.CycleResult) {
	r.mu.Lock()
	r.last[res.Symbol] = res
	r.mu.Unlock()

	// recording outlives a cancelled cycle
	rctx := context.WithoutCancel(ctx)
	for _, rec := range r.recorders {
		if err := rec.Record(rctx, res); err != nil {
			logger.ErrorWithErr(ctx, "Failed to record cycle", err, "symbol", res.Symbol, "cycle_id", res.ID)
		}
	}
	for _, o := range r.observers {
		o.ObserveCycle(res)
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(rctx, res); err != nil {
			logger.ErrorWithErr(ctx, "Failed to send notification", err, "symbol", res.Symbol, "cycle_id", res.ID)
		}
	}
}

// Last returns the most recent result per symbol, ordered by symbol.
func (r *Runner) Last() []types.CycleResult {
	r.mu.RLock()
	out := make([]types.CycleResult, 0, len(r.last))
	for _, res := range r.last {
		out = append(out, res)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// WatchPrices marks open positions from live ticks between cycles. A tick that
// fires a protective level triggers an immediate cycle for the symbol, which
// submits the closing order. Triggers for one symbol are spaced by the stream
// cooldown, and WatchPrices returns only after the cycles it started finish.
func (r *Runner) WatchPrices(ctx context.Context, ticks <-chan interfaces.Tick, book *position.Book) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case tk, ok := <-ticks:
			if !ok {
				return
			}
			price := decimal.NewFromFloat(tk.Price)
			p, err := book.MarkToMarket(tk.Symbol, price)
			if err != nil {
				continue
			}
			events := position.Triggers(p, price)
			if len(events) == 0 || !r.claimStreamTrigger(tk.Symbol) {
				continue
			}
			logger.Info(ctx, "Live price crossed protective level", "symbol", tk.Symbol, "price", tk.Price, "kind", events[0].Kind)
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				if _, err := r.Trigger(ctx, symbol); err != nil && !errors.Is(err, ErrCycleInFlight) {
					logger.ErrorWithErr(ctx, "Triggered cycle failed to start", err, "symbol", symbol)
				}
			}(tk.Symbol)
		}
	}
}

// claimStreamTrigger reports whether a stream-triggered cycle may start for
// symbol now, and if so holds off the next one for the cooldown.
func (r *Runner) claimStreamTrigger(symbol string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Before(r.streamNext[symbol]) {
		return false
	}
	r.streamNext[symbol] = now.Add(r.cooldown)
	return true
}
