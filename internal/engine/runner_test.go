package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/types"
)

type blockingEngine struct {
	entered chan string
	release chan struct{}
}

func (b *blockingEngine) Cycle(ctx context.Context, symbol string) *types.CycleResult {
	b.entered <- symbol
	<-b.release
	return &types.CycleResult{ID: "c-" + symbol, Symbol: symbol, Outcome: types.OutcomeHold, ActionTaken: types.Hold}
}

type countingEngine struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingEngine) Cycle(_ context.Context, symbol string) *types.CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[symbol]++
	return &types.CycleResult{Symbol: symbol, Outcome: types.OutcomeOrderPlaced, ActionTaken: types.Buy}
}

type memRecorder struct {
	mu  sync.Mutex
	got []types.CycleResult
	err error
}

func (m *memRecorder) Record(_ context.Context, res types.CycleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, res)
	return m.err
}

func (m *memRecorder) Notify(ctx context.Context, res types.CycleResult) error {
	return m.Record(ctx, res)
}

type memObserver struct{ n int }

func (m *memObserver) ObserveCycle(types.CycleResult) { m.n++ }

func TestTriggerRefusesOverlap(t *testing.T) {
	eng := &blockingEngine{entered: make(chan string, 1), release: make(chan struct{})}
	r := NewRunner(eng, []string{"BTCUSDT", "ETHUSDT"}, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.Trigger(context.Background(), "BTCUSDT"); err != nil {
			t.Errorf("first Trigger failed: %v", err)
		}
	}()
	<-eng.entered

	if _, err := r.Trigger(context.Background(), "BTCUSDT"); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("Expected ErrCycleInFlight, got %v", err)
	}
	if _, err := r.Trigger(context.Background(), "DOGEUSDT"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("Expected ErrUnknownSymbol, got %v", err)
	}

	close(eng.release)
	<-done

	// the lock is free again once the cycle finished
	go func() { <-eng.entered }()
	if _, err := r.Trigger(context.Background(), "BTCUSDT"); err != nil {
		t.Errorf("Expected trigger after completion to run, got %v", err)
	}
}

func TestRunnerRecordsAndKeepsLast(t *testing.T) {
	eng := &countingEngine{calls: map[string]int{}}
	rec := &memRecorder{err: errors.New("disk full")}
	notifier := &memRecorder{}
	obs := &memObserver{}
	r := NewRunner(eng, []string{"ETHUSDT", "BTCUSDT"}, time.Minute,
		WithRecorders(rec), WithNotifier(notifier), WithObserver(obs))

	r.RunOnce(context.Background())

	if eng.calls["BTCUSDT"] != 1 || eng.calls["ETHUSDT"] != 1 {
		t.Errorf("Expected one cycle per symbol, got %v", eng.calls)
	}
	if len(rec.got) != 2 || len(notifier.got) != 2 || obs.n != 2 {
		t.Errorf("Expected 2 recorded, notified and observed, got %d/%d/%d", len(rec.got), len(notifier.got), obs.n)
	}
	last := r.Last()
	if len(last) != 2 || last[0].Symbol != "BTCUSDT" || last[1].Symbol != "ETHUSDT" {
		t.Errorf("Expected last results ordered by symbol, got %+v", last)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	eng := &countingEngine{calls: map[string]int{}}
	r := NewRunner(eng, []string{"BTCUSDT"}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected nil error on shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.calls["BTCUSDT"] < 2 {
		t.Errorf("Expected repeated cycles, got %d", eng.calls["BTCUSDT"])
	}
}

func TestWatchPricesTriggersCycleOnStop(t *testing.T) {
	eng := &blockingEngine{entered: make(chan string, 1), release: make(chan struct{})}
	close(eng.release)
	r := NewRunner(eng, []string{"BTCUSDT"}, time.Minute)

	book := position.NewBook(nil)
	_, err := book.Open(context.Background(), "BTCUSDT", types.Long, decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.Zero)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := make(chan interfaces.Tick, 4)
	go r.WatchPrices(ctx, ticks, book)

	ticks <- interfaces.Tick{Symbol: "BTCUSDT", Price: 98}
	ticks <- interfaces.Tick{Symbol: "ETHUSDT", Price: 1}
	ticks <- interfaces.Tick{Symbol: "BTCUSDT", Price: 94}

	select {
	case s := <-eng.entered:
		if s != "BTCUSDT" {
			t.Errorf("Expected BTCUSDT cycle, got %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a triggered cycle")
	}

	p, _ := book.Get("BTCUSDT")
	if !p.CurrentPrice.Equal(decimal.NewFromInt(94)) {
		t.Errorf("Expected position marked at 94, got %s", p.CurrentPrice)
	}
}

func TestWatchPricesDebouncesCrossingTicks(t *testing.T) {
	eng := &countingEngine{calls: map[string]int{}}
	r := NewRunner(eng, []string{"BTCUSDT"}, time.Minute, WithStreamCooldown(time.Minute))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	book := position.NewBook(nil)
	_, err := book.Open(context.Background(), "BTCUSDT", types.Long, decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.Zero)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	watch := func(n int) {
		ticks := make(chan interfaces.Tick, n)
		for i := 0; i < n; i++ {
			ticks <- interfaces.Tick{Symbol: "BTCUSDT", Price: 94 - float64(i)*0.01}
		}
		close(ticks)
		r.WatchPrices(context.Background(), ticks, book)
	}

	watch(50)
	eng.mu.Lock()
	calls := eng.calls["BTCUSDT"]
	eng.mu.Unlock()
	if calls != 1 {
		t.Fatalf("Expected 1 cycle for 50 crossing ticks, got %d", calls)
	}

	now = now.Add(time.Minute)
	watch(5)
	eng.mu.Lock()
	calls = eng.calls["BTCUSDT"]
	eng.mu.Unlock()
	if calls != 2 {
		t.Errorf("Expected a second cycle after the cooldown, got %d", calls)
	}
}
