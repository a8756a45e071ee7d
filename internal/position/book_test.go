package position

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/types"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func openLong(t *testing.T, b *Book) {
	t.Helper()
	if _, err := b.Open(context.Background(), "BTCUSDT", types.Long, d("0.1"), d("50000"), d("48000"), d("52000")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestMarkToMarketLong(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)

	p, err := b.MarkToMarket("BTCUSDT", d("51000"))
	if err != nil {
		t.Fatalf("MarkToMarket failed: %v", err)
	}
	if !p.UnrealizedPnL.Equal(d("100")) {
		t.Errorf("Expected unrealized P&L 100, got %s", p.UnrealizedPnL)
	}

	again, _ := b.MarkToMarket("BTCUSDT", d("51000"))
	if !again.UnrealizedPnL.Equal(p.UnrealizedPnL) || !again.CurrentPrice.Equal(p.CurrentPrice) {
		t.Errorf("Expected idempotent mark, got %s then %s", p.UnrealizedPnL, again.UnrealizedPnL)
	}
}

func TestStopLossTrigger(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)

	events, err := b.CheckTriggers("BTCUSDT", d("47000"))
	if err != nil {
		t.Fatalf("CheckTriggers failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected exactly one trigger, got %d", len(events))
	}
	if events[0].Kind != types.TriggerStopLoss {
		t.Errorf("Expected STOP_LOSS, got %s", events[0].Kind)
	}
	if _, ok := b.Get("BTCUSDT"); !ok {
		t.Error("Expected CheckTriggers to leave the position open")
	}
}

func TestTakeProfitTrigger(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)

	events, _ := b.CheckTriggers("BTCUSDT", d("52000"))
	if len(events) != 1 || events[0].Kind != types.TriggerTakeProfit {
		t.Fatalf("Expected one TAKE_PROFIT trigger, got %+v", events)
	}

	if events, _ := b.CheckTriggers("BTCUSDT", d("50500")); len(events) != 0 {
		t.Errorf("Expected no triggers between levels, got %+v", events)
	}
}

func TestShortMirrorsLong(t *testing.T) {
	b := NewBook(nil)
	if _, err := b.Open(context.Background(), "ETHUSDT", types.Short, d("2"), d("3000"), d("3100"), d("2800")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p, _ := b.MarkToMarket("ETHUSDT", d("2900"))
	if !p.UnrealizedPnL.Equal(d("200")) {
		t.Errorf("Expected short P&L 200, got %s", p.UnrealizedPnL)
	}

	events, _ := b.CheckTriggers("ETHUSDT", d("3150"))
	if len(events) != 1 || events[0].Kind != types.TriggerStopLoss {
		t.Fatalf("Expected short STOP_LOSS above stop, got %+v", events)
	}
	events, _ = b.CheckTriggers("ETHUSDT", d("2750"))
	if len(events) != 1 || events[0].Kind != types.TriggerTakeProfit {
		t.Fatalf("Expected short TAKE_PROFIT below take, got %+v", events)
	}
}

func TestUnsetLevelsNeverTrigger(t *testing.T) {
	b := NewBook(nil)
	if _, err := b.Open(context.Background(), "SOLUSDT", types.Long, d("1"), d("100"), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if events, _ := b.CheckTriggers("SOLUSDT", d("1")); len(events) != 0 {
		t.Errorf("Expected no triggers without levels, got %+v", events)
	}
}

func TestDoubleOpenConflicts(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)

	_, err := b.Open(context.Background(), "BTCUSDT", types.Short, d("0.1"), d("50000"), decimal.Zero, decimal.Zero)
	if !errors.Is(err, types.ErrPositionConflict) {
		t.Fatalf("Expected ErrPositionConflict, got %v", err)
	}
}

func TestOpenValidation(t *testing.T) {
	b := NewBook(nil)
	if _, err := b.Open(context.Background(), "BTCUSDT", types.Long, decimal.Zero, d("50000"), decimal.Zero, decimal.Zero); err == nil {
		t.Error("Expected error for zero size")
	}
	if _, err := b.Open(context.Background(), "BTCUSDT", types.Long, d("1"), d("-1"), decimal.Zero, decimal.Zero); err == nil {
		t.Error("Expected error for negative entry")
	}
	if len(b.List()) != 0 {
		t.Error("Expected rejected opens to leave the book empty")
	}
}

func TestCloseMissingSymbol(t *testing.T) {
	b := NewBook(nil)

	if _, err := b.Close(context.Background(), "BTCUSDT", "manual"); !errors.Is(err, types.ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound from Close, got %v", err)
	}
	if _, err := b.MarkToMarket("BTCUSDT", d("1")); !errors.Is(err, types.ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound from MarkToMarket, got %v", err)
	}
	if _, err := b.CheckTriggers("BTCUSDT", d("1")); !errors.Is(err, types.ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound from CheckTriggers, got %v", err)
	}
}

func TestCloseAtRealizesPnL(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)

	closed, err := b.CloseAt(context.Background(), "BTCUSDT", d("47000"), "STOP_LOSS")
	if err != nil {
		t.Fatalf("CloseAt failed: %v", err)
	}
	if !closed.RealizedPnL.Equal(d("-300")) {
		t.Errorf("Expected realized P&L -300, got %s", closed.RealizedPnL)
	}
	if closed.Reason != "STOP_LOSS" {
		t.Errorf("Expected reason STOP_LOSS, got %s", closed.Reason)
	}
	if _, ok := b.Get("BTCUSDT"); ok {
		t.Error("Expected position removed after close")
	}
}

func TestCloseUsesLastMark(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)
	_, _ = b.MarkToMarket("BTCUSDT", d("51000"))

	closed, err := b.Close(context.Background(), "BTCUSDT", "manual")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !closed.ExitPrice.Equal(d("51000")) || !closed.RealizedPnL.Equal(d("100")) {
		t.Errorf("Expected exit 51000 with P&L 100, got %s / %s", closed.ExitPrice, closed.RealizedPnL)
	}
}

func TestTightenStopOnlyTightens(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)
	_, _ = b.MarkToMarket("BTCUSDT", d("51000"))

	if moved, _ := b.TightenStop(context.Background(), "BTCUSDT", d("47000")); moved {
		t.Error("Expected lower stop to be ignored for a long")
	}
	if moved, _ := b.TightenStop(context.Background(), "BTCUSDT", d("51500")); moved {
		t.Error("Expected stop above price to be ignored")
	}
	moved, err := b.TightenStop(context.Background(), "BTCUSDT", d("49980"))
	if err != nil || !moved {
		t.Fatalf("Expected stop to tighten, got moved=%v err=%v", moved, err)
	}
	p, _ := b.Get("BTCUSDT")
	if !p.StopLoss.Equal(d("49980")) {
		t.Errorf("Expected stop 49980, got %s", p.StopLoss)
	}
}

func TestExposureAndOpenPnL(t *testing.T) {
	b := NewBook(nil)
	openLong(t, b)
	if _, err := b.Open(context.Background(), "ETHUSDT", types.Short, d("2"), d("3000"), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_, _ = b.MarkToMarket("BTCUSDT", d("51000"))
	_, _ = b.MarkToMarket("ETHUSDT", d("3050"))

	if got := b.Exposure(); !got.Equal(d("2.1")) {
		t.Errorf("Expected exposure 2.1, got %s", got)
	}
	if got := b.OpenPnL(); !got.Equal(d("0")) {
		t.Errorf("Expected open P&L 0 (100 - 100), got %s", got)
	}
	list := b.List()
	if len(list) != 2 || list[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected two positions sorted by symbol, got %+v", list)
	}
}

func TestPersistAndReload(t *testing.T) {
	store := NewMemoryStore()
	b := NewBook(store)
	openLong(t, b)

	reloaded := NewBook(store)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, ok := reloaded.Get("BTCUSDT")
	if !ok || !p.StopLoss.Equal(d("48000")) {
		t.Fatalf("Expected persisted position with stop 48000, got %+v", p)
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Save(context.Context, []types.Position) error {
	return errors.New("disk full")
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	b := NewBook(&failingStore{})
	openLong(t, b)

	if _, ok := b.Get("BTCUSDT"); !ok {
		t.Fatal("Expected position in memory despite failed save")
	}
}

// ctxStore fails writes whose context is already done, like a real driver.
type ctxStore struct{ *MemoryStore }

func (c ctxStore) Save(ctx context.Context, ps []types.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Save(ctx, ps)
}

func TestPersistSurvivesCancelledContext(t *testing.T) {
	store := ctxStore{NewMemoryStore()}
	b := NewBook(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Open(ctx, "BTCUSDT", types.Long, d("0.1"), d("50000"), d("48000"), d("52000")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	reloaded := NewBook(store)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n := len(reloaded.List()); n != 1 {
		t.Errorf("Expected 1 persisted position, got %d", n)
	}
}

func TestConcurrentMarksAndOpens(t *testing.T) {
	b := NewBook(nil)
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	for _, s := range symbols {
		if _, err := b.Open(context.Background(), s, types.Long, d("1"), d("100"), decimal.Zero, decimal.Zero); err != nil {
			t.Fatalf("Open %s failed: %v", s, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, s := range symbols {
			wg.Add(1)
			go func(sym string, n int) {
				defer wg.Done()
				_, _ = b.MarkToMarket(sym, decimal.NewFromInt(int64(100+n)))
				_, _ = b.CheckTriggers(sym, decimal.NewFromInt(int64(100+n)))
				_ = b.Exposure()
			}(s, i)
		}
	}
	wg.Wait()

	if got := b.Exposure(); !got.Equal(d("4")) {
		t.Errorf("Expected exposure 4, got %s", got)
	}
}
