// Package record fans cycle results out to every configured sink.
package record

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

// Sink is a recorder that holds a connection.
type Sink interface {
	interfaces.CycleRecorder
	Name() string
	Close() error
}

// Multi records to each sink in turn. One sink failing does not stop the
// others.
type Multi struct {
	sinks []Sink
}

var _ interfaces.CycleRecorder = (*Multi)(nil)

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Record(ctx context.Context, res types.CycleResult) error {
	var failed []string
	for _, s := range m.sinks {
		if err := s.Record(ctx, res); err != nil {
			logger.ErrorWithErr(ctx, "Cycle sink failed", err, "sink", s.Name(), "cycle_id", res.ID)
			failed = append(failed, s.Name())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("record cycle %s: sinks failed: %s", res.ID, strings.Join(failed, ", "))
	}
	return nil
}

func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s", s.Name())
		}
	}
	return first
}

// Payload is the JSON form every sink stores.
func Payload(res types.CycleResult) ([]byte, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(err, "encode cycle result")
	}
	return b, nil
}
