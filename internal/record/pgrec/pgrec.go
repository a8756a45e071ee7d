// Package pgrec keeps cycle history in PostgreSQL.
package pgrec

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/jackc/pgx/v5/stdlib"

	"crypto-trading-assistant/internal/record"
	"crypto-trading-assistant/internal/types"
)

type Recorder struct {
	db *sql.DB
}

var _ record.Sink = (*Recorder)(nil)

// Row is one stored cycle.
type Row struct {
	ID        string
	Symbol    string
	StartedAt time.Time
	Outcome   types.Outcome
	Action    types.Action
	Reason    string
	Payload   []byte
}

// New opens dsn with the pgx driver and creates the table if needed.
func New(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	r := &Recorder{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS cycle_results (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  duration_ms BIGINT NOT NULL,
  outcome TEXT NOT NULL,
  action TEXT NOT NULL,
  reason TEXT NOT NULL,
  payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycle_results_symbol_started ON cycle_results(symbol, started_at DESC);
`)
	if err != nil {
		return errors.Wrap(err, "migrate cycle_results")
	}
	return nil
}

func (r *Recorder) Name() string { return "postgres" }

func (r *Recorder) Record(ctx context.Context, res types.CycleResult) error {
	payload, err := record.Payload(res)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO cycle_results(id, symbol, started_at, duration_ms, outcome, action, reason, payload)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
		res.ID, res.Symbol, res.StartedAt, res.Duration.Milliseconds(),
		string(res.Outcome), string(res.ActionTaken), res.Reason, string(payload))
	if err != nil {
		return errors.Wrapf(err, "insert cycle %s", res.ID)
	}
	return nil
}

// Recent returns up to limit cycles for symbol, newest first.
func (r *Recorder) Recent(ctx context.Context, symbol string, limit int) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, symbol, started_at, outcome, action, reason, payload
FROM cycle_results WHERE symbol = $1 ORDER BY started_at DESC LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query cycle_results")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row             Row
			outcome, action string
			payload         string
		)
		if err := rows.Scan(&row.ID, &row.Symbol, &row.StartedAt, &outcome, &action, &row.Reason, &payload); err != nil {
			return nil, errors.Wrap(err, "scan cycle_results")
		}
		row.Outcome = types.Outcome(outcome)
		row.Action = types.Action(action)
		row.Payload = []byte(payload)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Recorder) Close() error { return r.db.Close() }
