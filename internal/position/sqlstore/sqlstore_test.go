package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/types"
)

func TestRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "positions.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	opened := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	in := []types.Position{{
		Symbol:        "BTCUSDT",
		Side:          types.Long,
		Size:          decimal.RequireFromString("0.1"),
		EntryPrice:    decimal.NewFromInt(50000),
		CurrentPrice:  decimal.NewFromInt(51000),
		UnrealizedPnL: decimal.NewFromInt(100),
		StopLoss:      decimal.NewFromInt(48000),
		TakeProfit:    decimal.NewFromInt(52000),
		OpenedAt:      opened,
		UpdatedAt:     opened.Add(time.Minute),
	}}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 position, got %d", len(out))
	}
	p := out[0]
	if p.Side != types.Long || !p.UnrealizedPnL.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected long with P&L 100, got %s %s", p.Side, p.UnrealizedPnL)
	}
	if !p.TakeProfit.Equal(decimal.NewFromInt(52000)) {
		t.Errorf("Expected take 52000, got %s", p.TakeProfit)
	}
	if !p.OpenedAt.Equal(opened) {
		t.Errorf("Expected opened_at %v, got %v", opened, p.OpenedAt)
	}
}

func TestSaveEmptyClears(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "positions.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Save(ctx, []types.Position{{Symbol: "ETHUSDT", Side: types.Short, Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(3000)}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty table, got %d rows", len(out))
	}
}

func TestBookPersistsAfterCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := position.NewBook(s)
	if _, err := b.Open(ctx, "BTCUSDT", types.Long, decimal.RequireFromString("0.1"),
		decimal.NewFromInt(50000), decimal.NewFromInt(48000), decimal.NewFromInt(52000)); err != nil {
		t.Fatalf("Book.Open failed: %v", err)
	}

	reloaded := position.NewBook(s)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n := len(reloaded.List()); n != 1 {
		t.Errorf("Expected 1 position after restart, got %d", n)
	}
}
