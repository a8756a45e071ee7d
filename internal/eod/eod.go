// Package eod writes the end-of-day CSV summary from the trade journal.
package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/tradelog"
	"crypto-trading-assistant/internal/types"
)

var headers = []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value", "trades"}

// aggRow is the per-symbol aggregate for one day.
type aggRow struct {
	Symbol      string
	BuyQty      decimal.Decimal
	BuyValue    decimal.Decimal
	SellQty     decimal.Decimal
	SellValue   decimal.Decimal
	RealizedPnL decimal.Decimal // sum over CLOSE entries
	Trades      int
}

// Summarizer aggregates a day's journal. The cutoff is a wall-clock time in
// the journal's timezone.
type Summarizer struct {
	journal    *tradelog.Journal
	dir        string
	cutoffHour int
	cutoffMin  int
	now        func() time.Time

	mu      sync.Mutex
	lastDay string // last day summarized, even without trades
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// New returns a summarizer writing to dir (default <journal dir>/eod) that
// becomes due at cutoff, given as HH:MM.
func New(journal *tradelog.Journal, dir, cutoff string) (*Summarizer, error) {
	t, err := time.Parse("15:04", cutoff)
	if err != nil {
		return nil, errors.Wrapf(types.ErrConfiguration, "eod time %q: %v", cutoff, err)
	}
	if dir == "" {
		dir = filepath.Join(journal.Dir(), "eod")
	}
	return &Summarizer{
		journal:    journal,
		dir:        dir,
		cutoffHour: t.Hour(),
		cutoffMin:  t.Minute(),
		now:        time.Now,
	}, nil
}

func (s *Summarizer) localNow() time.Time {
	return s.now().In(s.journal.Location())
}

// CSVPath is where the summary for the day containing t is written.
func (s *Summarizer) CSVPath(t time.Time) string {
	return filepath.Join(s.dir, s.dayKey(t)+".csv")
}

func (s *Summarizer) dayKey(t time.Time) string {
	return t.In(s.journal.Location()).Format("2006-01-02")
}

func (s *Summarizer) markDone(t time.Time) {
	s.mu.Lock()
	s.lastDay = s.dayKey(t)
	s.mu.Unlock()
}

func (s *Summarizer) doneFor(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDay == s.dayKey(t)
}

// SummarizeDay writes the CSV for the day containing t. It returns "" and no
// error when nothing was traded that day.
func (s *Summarizer) SummarizeDay(t time.Time) (string, error) {
	entries, err := s.journal.ReadTrades(t)
	if err != nil {
		return "", err
	}
	aggs := aggregate(entries)
	if len(aggs) == 0 {
		s.markDone(t)
		return "", nil
	}

	outPath := s.CSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", errors.Wrap(err, "create eod dir")
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(err, "create eod csv")
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := writeRows(w, aggs); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "write eod csv")
	}
	s.markDone(t)
	return outPath, nil
}

func (s *Summarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(s.localNow())
}

// ShouldRunNow is true once the cutoff has passed today, today has not been
// summarized by this process and today's CSV does not exist yet.
func (s *Summarizer) ShouldRunNow() (bool, string) {
	now := s.localNow()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.cutoffHour, s.cutoffMin, 0, 0, now.Location())
	outPath := s.CSVPath(now)
	if !now.Before(cutoff) && !s.doneFor(now) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

func aggregate(entries []tradelog.Entry) []*aggRow {
	bySymbol := map[string]*aggRow{}
	for _, e := range entries {
		if e.Symbol == "" {
			continue
		}
		row := bySymbol[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			bySymbol[e.Symbol] = row
		}
		qty := decimal.NewFromFloat(e.Size)
		value := qty.Mul(decimal.NewFromFloat(e.Price))
		switch e.Side {
		case string(types.OrderBuy):
			row.BuyQty = row.BuyQty.Add(qty)
			row.BuyValue = row.BuyValue.Add(value)
		case string(types.OrderSell):
			row.SellQty = row.SellQty.Add(qty)
			row.SellValue = row.SellValue.Add(value)
		default:
			continue
		}
		if e.Action == tradelog.ActionClose {
			row.RealizedPnL = row.RealizedPnL.Add(decimal.NewFromFloat(e.RealizedPnL))
		}
		row.Trades++
	}

	rows := make([]*aggRow, 0, len(bySymbol))
	for _, r := range bySymbol {
		if r.Trades > 0 {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

func avg(value, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return value.Div(qty)
}

func writeRows(w *csv.Writer, rows []*aggRow) error {
	if err := w.Write(headers); err != nil {
		return errors.Wrap(err, "write eod header")
	}
	var totalBuy, totalSell, totalPnL decimal.Decimal
	trades := 0
	for _, r := range rows {
		rec := []string{
			r.Symbol,
			r.BuyQty.String(),
			avg(r.BuyValue, r.BuyQty).StringFixed(4),
			r.SellQty.String(),
			avg(r.SellValue, r.SellQty).StringFixed(4),
			r.RealizedPnL.StringFixed(2),
			r.BuyValue.StringFixed(2),
			r.SellValue.StringFixed(2),
			strconv.Itoa(r.Trades),
		}
		if err := w.Write(rec); err != nil {
			return errors.Wrap(err, "write eod row")
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(r.RealizedPnL)
		trades += r.Trades
	}
	total := []string{"TOTAL", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2), strconv.Itoa(trades)}
	if err := w.Write(total); err != nil {
		return errors.Wrap(err, "write eod total")
	}
	return nil
}
