package exchange

import (
	"sync"

	"crypto-trading-assistant/internal/interfaces"
)

const maxTicksPerSymbol = 200

// priceCache keeps the most recent ticks per symbol in a bounded buffer.
type priceCache struct {
	buffers map[string][]interfaces.Tick
	maxSize int
	mu      sync.RWMutex
}

func newPriceCache(maxSize int) *priceCache {
	return &priceCache{
		buffers: make(map[string][]interfaces.Tick),
		maxSize: maxSize,
	}
}

// record appends t; ticks older than the newest one are dropped.
func (pc *priceCache) record(t interfaces.Tick) {
	if t.Symbol == "" || t.Price <= 0 {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	buf := pc.buffers[t.Symbol]
	if n := len(buf); n > 0 && buf[n-1].Ts > t.Ts {
		return
	}
	buf = append(buf, t)
	if len(buf) > pc.maxSize {
		buf = buf[1:]
	}
	pc.buffers[t.Symbol] = buf
}

func (pc *priceCache) last(symbol string) (interfaces.Tick, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	buf := pc.buffers[symbol]
	if len(buf) == 0 {
		return interfaces.Tick{}, false
	}
	return buf[len(buf)-1], true
}
