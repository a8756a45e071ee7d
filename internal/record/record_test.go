package record

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/types"
)

type fakeSink struct {
	name   string
	err    error
	got    []string
	closed bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Record(_ context.Context, res types.CycleResult) error {
	f.got = append(f.got, res.ID)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiContinuesPastFailure(t *testing.T) {
	bad := &fakeSink{name: "redis", err: errors.New("down")}
	good := &fakeSink{name: "nats"}
	m := NewMulti(bad, good)

	err := m.Record(context.Background(), types.CycleResult{ID: "c1"})
	if err == nil {
		t.Fatal("Expected error naming the failed sink")
	}
	if len(good.got) != 1 || good.got[0] != "c1" {
		t.Errorf("Expected later sink to still record, got %v", good.got)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !bad.closed || !good.closed {
		t.Error("Expected all sinks closed")
	}
}

func TestPayload(t *testing.T) {
	b, err := Payload(types.CycleResult{ID: "c1", Symbol: "BTCUSDT", Outcome: types.OutcomeRejected})
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["outcome"] != "REJECTED" || got["symbol"] != "BTCUSDT" {
		t.Errorf("Unexpected payload %s", b)
	}
}
