package interfaces

import (
	"context"

	"crypto-trading-assistant/internal/types"
)

// Engine runs one analysis-and-decide cycle. The result always carries an
// explicit outcome; failures are reported in it rather than returned.
type Engine interface {
	Cycle(ctx context.Context, symbol string) *types.CycleResult
}

type CycleRecorder interface {
	Record(ctx context.Context, res types.CycleResult) error
}

type Notifier interface {
	Notify(ctx context.Context, res types.CycleResult) error
}
