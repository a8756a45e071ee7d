package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	dialTimeout  = 10 * time.Second
	minBackoff   = 500 * time.Millisecond
	maxBackoff   = 10 * time.Second
)

// Stream subscribes to combined miniTicker streams and reconnects with
// exponential backoff until the context is done.
type Stream struct {
	wsURL  string // e.g. wss://stream.binance.com:9443
	dialer *websocket.Dialer
}

var _ interfaces.PriceStream = (*Stream)(nil)

func NewStream(wsURL string) *Stream {
	return &Stream{wsURL: strings.TrimSpace(wsURL), dialer: websocket.DefaultDialer}
}

type combinedMsg struct {
	Stream string  `json:"stream"`
	Data   miniMsg `json:"data"`
}

type miniMsg struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// Subscribe returns a channel of ticks. The channel is closed when ctx is done.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) (<-chan interfaces.Tick, error) {
	wsURL, err := buildCombinedURL(s.wsURL, symbols)
	if err != nil {
		return nil, err
	}
	out := make(chan interfaces.Tick, 1024)
	go s.run(ctx, wsURL, out)
	return out, nil
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("stream url empty")
	}
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		streams = append(streams, sym+"@miniTicker")
	}
	if len(streams) == 0 {
		return "", errors.New("no valid symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse stream url")
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (s *Stream) run(ctx context.Context, wsURL string, out chan<- interfaces.Tick) {
	defer close(out)

	backoff := minBackoff
	for ctx.Err() == nil {
		logger.Info(ctx, "Price stream connecting", "url", wsURL)
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := s.dialer.DialContext(dctx, wsURL, nil)
		cancel()
		if err != nil {
			logger.ErrorWithErr(ctx, "Price stream dial failed", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = minBackoff
		logger.Info(ctx, "Price stream connected")

		err = readLoop(ctx, conn, func(b []byte) {
			tick, ok := decodeMiniTicker(b)
			if !ok {
				return
			}
			select {
			case out <- tick:
			case <-ctx.Done():
			}
		})
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		logger.Warn(ctx, "Price stream disconnected, reconnecting", "error", err, "backoff", backoff)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func decodeMiniTicker(b []byte) (interfaces.Tick, bool) {
	var msg combinedMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		logger.Debug(context.Background(), "Ignoring undecodable stream message", "error", err)
		return interfaces.Tick{}, false
	}
	sym := strings.ToUpper(msg.Data.Symbol)
	px, err := strconv.ParseFloat(strings.TrimSpace(msg.Data.Close), 64)
	if sym == "" || err != nil || px <= 0 {
		return interfaces.Tick{}, false
	}
	ts := msg.Data.EventTime
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return interfaces.Tick{Symbol: sym, Price: px, Ts: ts}, true
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			// the reader must be gone before the caller closes its output
			_ = conn.Close()
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ping.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
