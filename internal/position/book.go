// Package position tracks at most one open position per symbol.
package position

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

// Store persists the full set of open positions. Save replaces the stored set
// in one step so a reader never observes a partial write.
type Store interface {
	Load(ctx context.Context) ([]types.Position, error)
	Save(ctx context.Context, positions []types.Position) error
}

// Book is safe for concurrent use. Operations on one symbol are serialized by
// that symbol's mutex; different symbols proceed in parallel.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	locks     map[string]*sync.Mutex

	saveMu sync.Mutex
	store  Store
	now    func() time.Time
}

// NewBook returns an empty book persisting to store. A nil store keeps
// positions in memory only.
func NewBook(store Store) *Book {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Book{
		positions: make(map[string]*types.Position),
		locks:     make(map[string]*sync.Mutex),
		store:     store,
		now:       time.Now,
	}
}

func (b *Book) symbolLock(symbol string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		b.locks[symbol] = l
	}
	return l
}

func (b *Book) lookup(symbol string) *types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Open records a new position. It fails with ErrPositionConflict when the
// symbol already has one.
func (b *Book) Open(ctx context.Context, symbol string, side types.Side, size, entry, stop, take decimal.Decimal) (types.Position, error) {
	if !size.IsPositive() {
		return types.Position{}, errors.Errorf("open %s: size must be positive, got %s", symbol, size)
	}
	if !entry.IsPositive() {
		return types.Position{}, errors.Errorf("open %s: entry price must be positive, got %s", symbol, entry)
	}
	if side != types.Long && side != types.Short {
		return types.Position{}, errors.Errorf("open %s: unknown side %q", symbol, side)
	}

	l := b.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	if b.lookup(symbol) != nil {
		return types.Position{}, errors.Wrapf(types.ErrPositionConflict, "open %s", symbol)
	}

	now := b.now()
	p := &types.Position{
		Symbol:        symbol,
		Side:          side,
		Size:          size,
		EntryPrice:    entry,
		CurrentPrice:  entry,
		UnrealizedPnL: decimal.Zero,
		StopLoss:      stop,
		TakeProfit:    take,
		OpenedAt:      now,
		UpdatedAt:     now,
	}

	b.mu.Lock()
	b.positions[symbol] = p
	b.mu.Unlock()

	b.persist(ctx)
	return *p, nil
}

// MarkToMarket values the position at price. Repeating it with the same price
// leaves the position unchanged apart from UpdatedAt.
func (b *Book) MarkToMarket(symbol string, price decimal.Decimal) (types.Position, error) {
	l := b.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	p := b.lookup(symbol)
	if p == nil {
		return types.Position{}, errors.Wrapf(types.ErrPositionNotFound, "mark %s", symbol)
	}

	b.mu.Lock()
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price)
	p.UpdatedAt = b.now()
	out := *p
	b.mu.Unlock()
	return out, nil
}

// CheckTriggers reports stop-loss and take-profit hits at price. It never
// closes the position.
func (b *Book) CheckTriggers(symbol string, price decimal.Decimal) ([]types.TriggerEvent, error) {
	p, ok := b.Get(symbol)
	if !ok {
		return nil, errors.Wrapf(types.ErrPositionNotFound, "check triggers %s", symbol)
	}
	return Triggers(p, price), nil
}

// Triggers evaluates p's levels at price.
func Triggers(p types.Position, price decimal.Decimal) []types.TriggerEvent {
	var events []types.TriggerEvent
	stopHit, takeHit := false, false
	switch p.Side {
	case types.Long:
		stopHit = p.HasStop() && price.LessThanOrEqual(p.StopLoss)
		takeHit = p.HasTake() && price.GreaterThanOrEqual(p.TakeProfit)
	case types.Short:
		stopHit = p.HasStop() && price.GreaterThanOrEqual(p.StopLoss)
		takeHit = p.HasTake() && price.LessThanOrEqual(p.TakeProfit)
	}
	if stopHit {
		events = append(events, types.TriggerEvent{Symbol: p.Symbol, Kind: types.TriggerStopLoss, Level: p.StopLoss, Price: price})
	}
	if takeHit {
		events = append(events, types.TriggerEvent{Symbol: p.Symbol, Kind: types.TriggerTakeProfit, Level: p.TakeProfit, Price: price})
	}
	return events
}

// Close removes the position at its last marked price.
func (b *Book) Close(ctx context.Context, symbol, reason string) (types.ClosedPosition, error) {
	return b.close(ctx, symbol, nil, reason)
}

// CloseAt marks the position at price and removes it.
func (b *Book) CloseAt(ctx context.Context, symbol string, price decimal.Decimal, reason string) (types.ClosedPosition, error) {
	return b.close(ctx, symbol, &price, reason)
}

func (b *Book) close(ctx context.Context, symbol string, price *decimal.Decimal, reason string) (types.ClosedPosition, error) {
	l := b.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	p := b.lookup(symbol)
	if p == nil {
		return types.ClosedPosition{}, errors.Wrapf(types.ErrPositionNotFound, "close %s", symbol)
	}

	now := b.now()
	b.mu.Lock()
	if price != nil {
		p.CurrentPrice = *price
	}
	exit := p.CurrentPrice
	if !exit.IsPositive() {
		exit = p.EntryPrice
	}
	p.UnrealizedPnL = p.PnLAt(exit)
	p.UpdatedAt = now
	closed := types.ClosedPosition{
		Position:    *p,
		ExitPrice:   exit,
		RealizedPnL: p.PnLAt(exit),
		ClosedAt:    now,
		Reason:      reason,
	}
	delete(b.positions, symbol)
	b.mu.Unlock()

	b.persist(ctx)
	return closed, nil
}

// TightenStop moves the stop toward the current price. A level that would
// loosen the stop, or sit beyond the current price, is ignored.
func (b *Book) TightenStop(ctx context.Context, symbol string, stop decimal.Decimal) (bool, error) {
	l := b.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	p := b.lookup(symbol)
	if p == nil {
		return false, errors.Wrapf(types.ErrPositionNotFound, "tighten stop %s", symbol)
	}
	if !stop.IsPositive() {
		return false, nil
	}

	b.mu.Lock()
	ref := p.CurrentPrice
	if !ref.IsPositive() {
		ref = p.EntryPrice
	}
	tighter := false
	switch p.Side {
	case types.Long:
		tighter = (!p.HasStop() || stop.GreaterThan(p.StopLoss)) && stop.LessThan(ref)
	case types.Short:
		tighter = (!p.HasStop() || stop.LessThan(p.StopLoss)) && stop.GreaterThan(ref)
	}
	if tighter {
		p.StopLoss = stop
		p.UpdatedAt = b.now()
	}
	b.mu.Unlock()

	if tighter {
		b.persist(ctx)
	}
	return tighter, nil
}

func (b *Book) Get(symbol string) (types.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// List returns copies of all open positions ordered by symbol.
func (b *Book) List() []types.Position {
	b.mu.RLock()
	out := make([]types.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Exposure is the summed size of all open positions.
func (b *Book) Exposure() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.Size)
	}
	return total
}

// OpenPnL is the summed unrealized P&L at the last marks.
func (b *Book) OpenPnL() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.UnrealizedPnL)
	}
	return total
}

// Load replaces the in-memory book with the stored positions.
func (b *Book) Load(ctx context.Context) error {
	stored, err := b.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load positions")
	}
	b.mu.Lock()
	b.positions = make(map[string]*types.Position, len(stored))
	for i := range stored {
		p := stored[i]
		b.positions[p.Symbol] = &p
	}
	b.mu.Unlock()
	logger.Info(ctx, "Positions loaded", "count", len(stored))
	return nil
}

// Save writes the current book to the store.
func (b *Book) Save(ctx context.Context) error {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	if err := b.store.Save(ctx, b.List()); err != nil {
		return errors.Wrap(err, "save positions")
	}
	return nil
}

// persist keeps the in-memory book authoritative: a failed save is logged.
// The write outlives ctx so a cancelled cycle still records a confirmed fill.
func (b *Book) persist(ctx context.Context) {
	if err := b.Save(context.WithoutCancel(ctx)); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist positions", err)
	}
}
