package interfaces

import "context"

type Tick struct {
	Symbol string
	Price  float64
	Ts     int64
}

// PriceStream delivers live last-price ticks until ctx is done.
type PriceStream interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan Tick, error)
}
