package natsrec

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"crypto-trading-assistant/internal/types"
)

func TestSubject(t *testing.T) {
	r := &Recorder{subject: "assistant.cycles"}
	if got := r.Subject("btcusdt"); got != "assistant.cycles.BTCUSDT" {
		t.Errorf("Expected assistant.cycles.BTCUSDT, got %s", got)
	}
}

func TestRecordPublishes(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	subject := "test." + uuid.NewString()[:8]
	rec, err := New(url, subject)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rec.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync(subject + ".>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	res := types.CycleResult{ID: "c1", Symbol: "ETHUSDT", Outcome: types.OutcomeRejected, ActionTaken: types.Hold}
	if err := rec.Record(context.Background(), res); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("Expected a message: %v", err)
	}
	if msg.Subject != subject+".ETHUSDT" {
		t.Errorf("Unexpected subject %s", msg.Subject)
	}
	var got types.CycleResult
	if err := json.Unmarshal(msg.Data, &got); err != nil || got.ID != "c1" {
		t.Errorf("Unexpected payload %s (%v)", msg.Data, err)
	}
}
