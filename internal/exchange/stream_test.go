package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBuildCombinedURL(t *testing.T) {
	u, err := buildCombinedURL("wss://stream.binance.com:9443", []string{"BTCUSDT", " ", "ethusdt"})
	if err != nil {
		t.Fatalf("buildCombinedURL failed: %v", err)
	}
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker"
	if u != want {
		t.Errorf("Expected %s, got %s", want, u)
	}
	if _, err := buildCombinedURL("", []string{"BTCUSDT"}); err == nil {
		t.Error("Expected error for empty url")
	}
	if _, err := buildCombinedURL("wss://x", nil); err == nil {
		t.Error("Expected error for no symbols")
	}
}

func TestStreamDeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotStreams := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case gotStreams <- r.URL.Query().Get("streams"):
		default:
		}

		msgs := []string{
			`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000001,"s":"BTCUSDT","c":"50123.45"}}`,
			`not json`,
			`{"stream":"ethusdt@miniTicker","data":{"E":1700000000002,"s":"ETHUSDT","c":"0"}}`,
			`{"stream":"ethusdt@miniTicker","data":{"E":1700000000003,"s":"ethusdt","c":"3001.5"}}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ticks, err := s.Subscribe(ctx, []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	want := []struct {
		sym   string
		price float64
	}{{"BTCUSDT", 50123.45}, {"ETHUSDT", 3001.5}}
	for _, w := range want {
		select {
		case tk := <-ticks:
			if tk.Symbol != w.sym || tk.Price != w.price {
				t.Errorf("Expected %s@%f, got %s@%f", w.sym, w.price, tk.Symbol, tk.Price)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for %s tick", w.sym)
		}
	}

	select {
	case got := <-gotStreams:
		if got != "btcusdt@miniTicker/ethusdt@miniTicker" {
			t.Errorf("Unexpected streams param %q", got)
		}
	default:
		t.Error("Expected server to see a subscription")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Expected tick channel to close after cancel")
		}
	}
}

func TestReadLoopWaitsForReaderOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := []byte(`{"stream":"btcusdt@miniTicker","data":{"E":1700000000001,"s":"BTCUSDT","c":"50000"}}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	var running atomic.Int32
	var returned, lateCall atomic.Bool
	started := make(chan struct{}, 1)
	onMsg := func([]byte) {
		running.Add(1)
		defer running.Add(-1)
		if returned.Load() {
			lateCall.Store(true)
		}
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- readLoop(ctx, conn, onMsg) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the first message")
	}
	cancel()

	select {
	case err := <-done:
		returned.Store(true)
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected readLoop to return after cancel")
	}
	if n := running.Load(); n != 0 {
		t.Errorf("Expected no message handler running after return, got %d", n)
	}
	time.Sleep(100 * time.Millisecond)
	if lateCall.Load() {
		t.Error("Expected no message handled after readLoop returned")
	}
}
