package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-trading-assistant/internal/tradelog"
)

func newSummarizer(t *testing.T, cutoff string) (*Summarizer, *tradelog.Journal) {
	t.Helper()
	j := tradelog.New(t.TempDir(), time.UTC)
	s, err := New(j, "", cutoff)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, j
}

func TestNewRejectsBadCutoff(t *testing.T) {
	j := tradelog.New(t.TempDir(), time.UTC)
	if _, err := New(j, "", "25:99"); err == nil {
		t.Error("Expected error for invalid cutoff")
	}
}

func TestSummarizeDayNoTrades(t *testing.T) {
	s, _ := newSummarizer(t, "23:55")
	p, err := s.SummarizeDay(time.Now())
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if p != "" {
		t.Errorf("Expected no csv, got %s", p)
	}
}

func TestSummarizeDayAggregates(t *testing.T) {
	s, j := newSummarizer(t, "23:55")
	entries := []tradelog.Entry{
		{Symbol: "BTCUSDT", Side: "BUY", Action: tradelog.ActionOpen, Size: 0.1, Price: 50000},
		{Symbol: "BTCUSDT", Side: "SELL", Action: tradelog.ActionClose, Size: 0.1, Price: 51000, RealizedPnL: 100},
		{Symbol: "ETHUSDT", Side: "BUY", Action: tradelog.ActionOpen, Size: 2, Price: 3000},
	}
	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	p, err := s.SummarizeToday()
	if err != nil {
		t.Fatalf("SummarizeToday failed: %v", err)
	}
	if filepath.Dir(p) != filepath.Join(j.Dir(), "eod") {
		t.Errorf("Unexpected csv path %s", p)
	}

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header, 2 symbols and total, got %d rows", len(rows))
	}
	btc := rows[1]
	if btc[0] != "BTCUSDT" || btc[2] != "50000.0000" || btc[4] != "51000.0000" || btc[5] != "100.00" || btc[8] != "2" {
		t.Errorf("Unexpected BTC row %v", btc)
	}
	eth := rows[2]
	if eth[0] != "ETHUSDT" || eth[1] != "2" || eth[3] != "0" || eth[6] != "6000.00" {
		t.Errorf("Unexpected ETH row %v", eth)
	}
	total := rows[3]
	if total[0] != "TOTAL" || total[5] != "100.00" || total[6] != "11000.00" || total[7] != "5100.00" || total[8] != "3" {
		t.Errorf("Unexpected total row %v", total)
	}
}

func TestShouldRunNow(t *testing.T) {
	s, j := newSummarizer(t, "18:00")

	s.now = func() time.Time { return time.Date(2026, 3, 1, 17, 59, 0, 0, time.UTC) }
	if run, _ := s.ShouldRunNow(); run {
		t.Error("Expected not to run before cutoff")
	}

	s.now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) }
	run, p := s.ShouldRunNow()
	if !run {
		t.Error("Expected to run at cutoff")
	}
	if p != filepath.Join(j.Dir(), "eod", "2026-03-01.csv") {
		t.Errorf("Unexpected csv path %s", p)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if run, _ := s.ShouldRunNow(); run {
		t.Error("Expected not to run once the csv exists")
	}
}

func TestShouldRunNowOnceOnQuietDay(t *testing.T) {
	s, _ := newSummarizer(t, "18:00")
	s.now = func() time.Time { return time.Date(2026, 3, 1, 18, 1, 0, 0, time.UTC) }

	if run, _ := s.ShouldRunNow(); !run {
		t.Fatal("Expected to run after cutoff")
	}
	p, err := s.SummarizeToday()
	if err != nil {
		t.Fatalf("SummarizeToday failed: %v", err)
	}
	if p != "" {
		t.Errorf("Expected no csv without trades, got %s", p)
	}

	s.now = func() time.Time { return time.Date(2026, 3, 1, 18, 2, 0, 0, time.UTC) }
	if run, _ := s.ShouldRunNow(); run {
		t.Error("Expected not to run again the same day")
	}

	s.now = func() time.Time { return time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC) }
	if run, _ := s.ShouldRunNow(); !run {
		t.Error("Expected to run after the next day's cutoff")
	}
}
