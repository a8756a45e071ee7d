// Package sqlstore persists open positions in a pure-Go SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"crypto-trading-assistant/internal/types"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  symbol TEXT PRIMARY KEY,
  side TEXT NOT NULL,
  size TEXT NOT NULL,
  entry_price TEXT NOT NULL,
  current_price TEXT NOT NULL,
  unrealized_pnl TEXT NOT NULL,
  stop_loss TEXT NOT NULL,
  take_profit TEXT NOT NULL,
  opened_at_ms INTEGER NOT NULL,
  updated_at_ms INTEGER NOT NULL
);`)
	if err != nil {
		return errors.Wrap(err, "migrate positions table")
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, side, size, entry_price, current_price, unrealized_pnl, stop_loss, take_profit, opened_at_ms, updated_at_ms
FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, errors.Wrap(err, "query positions")
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var (
			p                                 types.Position
			side                              string
			size, entry, cur, pnl, stop, take string
			openedMs, updatedMs               int64
		)
		if err := rows.Scan(&p.Symbol, &side, &size, &entry, &cur, &pnl, &stop, &take, &openedMs, &updatedMs); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Side = types.Side(side)
		dec := []struct {
			raw string
			dst *decimal.Decimal
		}{
			{size, &p.Size}, {entry, &p.EntryPrice}, {cur, &p.CurrentPrice},
			{pnl, &p.UnrealizedPnL}, {stop, &p.StopLoss}, {take, &p.TakeProfit},
		}
		for _, d := range dec {
			v, err := decimal.NewFromString(d.raw)
			if err != nil {
				return nil, errors.Wrapf(err, "parse decimal for %s", p.Symbol)
			}
			*d.dst = v
		}
		p.OpenedAt = time.UnixMilli(openedMs).UTC()
		p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Save replaces the table contents in one transaction.
func (s *Store) Save(ctx context.Context, positions []types.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return errors.Wrap(err, "clear positions")
	}
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, `
INSERT INTO positions(symbol, side, size, entry_price, current_price, unrealized_pnl, stop_loss, take_profit, opened_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Symbol, string(p.Side), p.Size.String(), p.EntryPrice.String(), p.CurrentPrice.String(),
			p.UnrealizedPnL.String(), p.StopLoss.String(), p.TakeProfit.String(),
			p.OpenedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
		if err != nil {
			return errors.Wrapf(err, "insert position %s", p.Symbol)
		}
	}
	return tx.Commit()
}
