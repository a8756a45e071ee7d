package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"crypto-trading-assistant/internal/types"
)

func fixedJournal(t *testing.T, now time.Time, loc *time.Location) *Journal {
	t.Helper()
	j := New(t.TempDir(), loc)
	j.now = func() time.Time { return now }
	return j
}

func TestAppendUsesTradingDay(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 20:00 UTC is already the next day in Kolkata
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	j := fixedJournal(t, now, kolkata)

	if err := j.Append(Entry{Symbol: "BTCUSDT", Side: "BUY", Action: ActionOpen, Size: 0.1, Price: 50000, OrderID: "SIM-1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	want := filepath.Join(j.Dir(), "2026-03-02.jsonl")
	if j.TradesPath(now) != want {
		t.Fatalf("Expected path %s, got %s", want, j.TradesPath(now))
	}
	entries, err := j.ReadTrades(now)
	if err != nil {
		t.Fatalf("ReadTrades failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Time != "2026-03-02 01:30:00" {
		t.Errorf("Expected local timestamp, got %s", entries[0].Time)
	}
	if entries[0].Size != 0.1 || entries[0].OrderID != "SIM-1" {
		t.Errorf("Unexpected entry %+v", entries[0])
	}
}

func TestReadTradesSkipsBadLines(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := fixedJournal(t, now, time.UTC)

	if entries, err := j.ReadTrades(now); err != nil || len(entries) != 0 {
		t.Fatalf("Expected no entries for missing file, got %d (%v)", len(entries), err)
	}

	_ = j.Append(Entry{Symbol: "BTCUSDT", Side: "BUY"})
	f, _ := os.OpenFile(j.TradesPath(now), os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()
	_ = j.Append(Entry{Symbol: "ETHUSDT", Side: "SELL"})

	entries, err := j.ReadTrades(now)
	if err != nil {
		t.Fatalf("ReadTrades failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Symbol != "ETHUSDT" {
		t.Errorf("Expected 2 valid entries, got %+v", entries)
	}
}

func TestDecisionsAndCycles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := fixedJournal(t, now, time.UTC)

	if err := j.AppendDecision(DecisionEntry{Symbol: "BTCUSDT", Action: "BUY", Confidence: 0.8, Indicators: map[string]float64{"rsi": 25}}); err != nil {
		t.Fatalf("AppendDecision failed: %v", err)
	}
	res := types.CycleResult{ID: "c1", Symbol: "BTCUSDT", StartedAt: now, Outcome: types.OutcomeHold, ActionTaken: types.Hold}
	if err := j.Record(context.Background(), res); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	f, err := os.Open(filepath.Join(j.Dir(), "cycles", "2026-03-01.jsonl"))
	if err != nil {
		t.Fatalf("Expected cycles file: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("Expected one cycle line")
	}
	var got types.CycleResult
	if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
		t.Fatalf("decode cycle: %v", err)
	}
	if got.ID != "c1" || got.Outcome != types.OutcomeHold {
		t.Errorf("Unexpected cycle %+v", got)
	}

	if _, err := os.Stat(filepath.Join(j.Dir(), "decisions", "2026-03-01.jsonl")); err != nil {
		t.Errorf("Expected decisions file: %v", err)
	}
}

func TestCompressOlder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	j := fixedJournal(t, now, time.UTC)

	old := filepath.Join(j.Dir(), "2026-03-01.jsonl")
	fresh := filepath.Join(j.Dir(), "2026-03-09.jsonl")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte(`{"symbol":"BTCUSDT"}`+"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.Chtimes(old, now.AddDate(0, 0, -9), now.AddDate(0, 0, -9))
	_ = os.Chtimes(fresh, now.AddDate(0, 0, -1), now.AddDate(0, 0, -1))

	if err := j.CompressOlder(7); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected old journal to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected fresh journal to remain")
	}

	gzf, err := os.Open(old + ".gz")
	if err != nil {
		t.Fatalf("Expected gzip file: %v", err)
	}
	defer gzf.Close()
	zr, err := gzip.NewReader(gzf)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var e Entry
	if err := json.NewDecoder(zr).Decode(&e); err != nil || e.Symbol != "BTCUSDT" {
		t.Errorf("Expected compressed entry, got %+v (%v)", e, err)
	}
}
