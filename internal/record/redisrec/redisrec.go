// Package redisrec appends cycle results to a Redis stream and publishes them
// on a channel for live consumers.
package redisrec

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"crypto-trading-assistant/internal/record"
	"crypto-trading-assistant/internal/types"
)

// maxStreamLen caps the stream; trimming is approximate.
const maxStreamLen = 10000

type Recorder struct {
	rdb     *redis.Client
	stream  string
	channel string
}

var _ record.Sink = (*Recorder)(nil)

// New connects to addr and checks it with PING.
func New(ctx context.Context, addr, stream, channel string) (*Recorder, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return NewWithClient(rdb, stream, channel), nil
}

func NewWithClient(rdb *redis.Client, stream, channel string) *Recorder {
	if strings.TrimSpace(stream) == "" {
		stream = "assistant:cycles"
	}
	if strings.TrimSpace(channel) == "" {
		channel = stream + ":pub"
	}
	return &Recorder{rdb: rdb, stream: stream, channel: channel}
}

func (r *Recorder) Name() string { return "redis" }

func (r *Recorder) Record(ctx context.Context, res types.CycleResult) error {
	payload, err := record.Payload(res)
	if err != nil {
		return err
	}

	// XADD <stream> MAXLEN ~ n * ...
	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"id":      res.ID,
			"symbol":  res.Symbol,
			"outcome": string(res.Outcome),
			"action":  string(res.ActionTaken),
			"ts_ms":   res.StartedAt.UnixMilli(),
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return errors.Wrap(err, "redis xadd")
	}

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

func (r *Recorder) Close() error { return r.rdb.Close() }
