// Package boltstore persists open positions in an embedded bbolt file, one
// JSON value per symbol.
package boltstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	bolt "go.etcd.io/bbolt"

	"crypto-trading-assistant/internal/types"
)

var bucketPositions = []byte("positions")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPositions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create positions bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(_ context.Context) ([]types.Position, error) {
	var out []types.Position
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPositions)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p types.Position
			if err := json.Unmarshal(v, &p); err != nil {
				return errors.Wrapf(err, "decode position %s", k)
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// Save drops and rebuilds the bucket inside one read-write transaction.
func (s *Store) Save(_ context.Context, positions []types.Position) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPositions); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketPositions)
		if err != nil {
			return err
		}
		for _, p := range positions {
			v, err := json.Marshal(p)
			if err != nil {
				return errors.Wrapf(err, "encode position %s", p.Symbol)
			}
			if err := b.Put([]byte(p.Symbol), v); err != nil {
				return err
			}
		}
		return nil
	})
}
