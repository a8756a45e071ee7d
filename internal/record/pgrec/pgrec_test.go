package pgrec

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"crypto-trading-assistant/internal/types"
)

func TestRecordAndRecent(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	rec, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rec.Close()

	symbol := "TEST" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = rec.db.ExecContext(context.Background(), `DELETE FROM cycle_results WHERE symbol = $1`, symbol)
	})

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := types.CycleResult{ID: uuid.NewString(), Symbol: symbol, StartedAt: base, Outcome: types.OutcomeHold, ActionTaken: types.Hold, Reason: "flat"}
	second := types.CycleResult{ID: uuid.NewString(), Symbol: symbol, StartedAt: base.Add(time.Minute), Outcome: types.OutcomeOrderPlaced, ActionTaken: types.Buy, Reason: "approved"}
	for _, res := range []types.CycleResult{first, second, first} {
		if err := rec.Record(ctx, res); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	rows, err := rec.Recent(ctx, symbol, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows (duplicate ignored), got %d", len(rows))
	}
	if rows[0].ID != second.ID || rows[0].Outcome != types.OutcomeOrderPlaced || rows[0].Action != types.Buy {
		t.Errorf("Expected newest first, got %+v", rows[0])
	}
	if len(rows[1].Payload) == 0 {
		t.Error("Expected stored payload")
	}
}
