package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/types"
)

func TestSaveReplacesAndLoads(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := []types.Position{
		{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.RequireFromString("0.1"), EntryPrice: decimal.NewFromInt(50000), StopLoss: decimal.NewFromInt(48000), OpenedAt: now},
		{Symbol: "ETHUSDT", Side: types.Short, Size: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(3000), OpenedAt: now},
	}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, first[:1]); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 position after replace, got %d", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || !got[0].Size.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected BTCUSDT size 0.1, got %s %s", got[0].Symbol, got[0].Size)
	}
	if !got[0].StopLoss.Equal(decimal.NewFromInt(48000)) {
		t.Errorf("Expected stop 48000, got %s", got[0].StopLoss)
	}
	if !got[0].OpenedAt.Equal(now) {
		t.Errorf("Expected opened_at %v, got %v", now, got[0].OpenedAt)
	}
}

func TestLoadEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "positions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty store, got %d positions", len(got))
	}
}
