// Package tradelog writes daily JSONL journals of trades, decisions and
// cycles, dated in the trading timezone.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/types"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
	fileExt    = ".jsonl"
)

// Trade actions recorded in Entry.Action.
const (
	ActionOpen  = "OPEN"
	ActionClose = "CLOSE"
)

type Entry struct {
	Time        string         `json:"time"`
	Symbol      string         `json:"symbol"`
	Side        string         `json:"side"` // BUY or SELL
	Action      string         `json:"action"`
	Size        float64        `json:"size"`
	Price       float64        `json:"price"`
	OrderID     string         `json:"order_id"`
	Reason      string         `json:"reason"`
	Confidence  float64        `json:"confidence"`
	RealizedPnL float64        `json:"realized_pnl,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

type DecisionEntry struct {
	Time          string             `json:"time"`
	Symbol        string             `json:"symbol"`
	Action        string             `json:"action"`
	Reason        string             `json:"reason"`
	Confidence    float64            `json:"confidence"`
	CombinedScore float64            `json:"combined_score"`
	Price         float64            `json:"price"`
	Indicators    map[string]float64 `json:"indicators,omitempty"`
	Missing       []string           `json:"missing,omitempty"`
}

// Journal is safe for concurrent use.
type Journal struct {
	dir string
	loc *time.Location
	now func() time.Time
	mu  sync.Mutex
}

var _ interfaces.CycleRecorder = (*Journal)(nil)

func New(dir string, loc *time.Location) *Journal {
	if dir == "" {
		dir = "logs"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Journal{dir: dir, loc: loc, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) Location() *time.Location { return j.loc }

// TradesPath is the trade journal for the trading day containing t.
func (j *Journal) TradesPath(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format(dayLayout)+fileExt)
}

func (j *Journal) decisionsPath(t time.Time) string {
	return filepath.Join(j.dir, "decisions", t.In(j.loc).Format(dayLayout)+fileExt)
}

func (j *Journal) cyclesPath(t time.Time) string {
	return filepath.Join(j.dir, "cycles", t.In(j.loc).Format(dayLayout)+fileExt)
}

func (j *Journal) Append(e Entry) error {
	now := j.now().In(j.loc)
	e.Time = now.Format(timeLayout)
	return j.appendLine(j.TradesPath(now), e)
}

func (j *Journal) AppendDecision(e DecisionEntry) error {
	now := j.now().In(j.loc)
	e.Time = now.Format(timeLayout)
	return j.appendLine(j.decisionsPath(now), e)
}

// Record journals a cycle result under the day it started.
func (j *Journal) Record(_ context.Context, res types.CycleResult) error {
	started := res.StartedAt
	if started.IsZero() {
		started = j.now()
	}
	return j.appendLine(j.cyclesPath(started), res)
}

func (j *Journal) appendLine(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode journal line")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "create journal dir")
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer f.Close()
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

// ReadTrades returns the trades journaled on the day containing t. A missing
// file yields no entries; undecodable lines are skipped.
func (j *Journal) ReadTrades(t time.Time) ([]Entry, error) {
	f, err := os.Open(j.TradesPath(t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open trade journal")
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read trade journal")
	}
	return out, nil
}

// CompressOlder gzips journal files last modified before the retention
// window and removes the originals.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != fileExt {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		// an earlier run already compressed it
		if _, err := os.Stat(p + ".gz"); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p); err != nil {
			return errors.Wrapf(err, "compress %s", p)
		}
		return os.Remove(p)
	})
}

func gzipFile(p string) error {
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(p+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(p + ".gz")
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
