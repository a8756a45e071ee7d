package engineobs

import (
	"context"
	"time"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/trace"
	"crypto-trading-assistant/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Cycle(ctx context.Context, symbol string) *types.CycleResult {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting trading cycle",
		"symbol", symbol,
	)

	result := oe.engine.Cycle(ctx, symbol)

	fields := []any{
		"symbol", symbol,
		"cycle_id", result.ID,
		"outcome", result.Outcome,
		"action", result.ActionTaken,
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if result.Signal != nil {
		fields = append(fields, "confidence", result.Signal.Confidence, "combined_score", result.Signal.CombinedScore)
	}

	if result.Outcome == types.OutcomeFailed {
		logger.WarnSkip(ctx, 1, "Trading cycle failed", fields...)
		return result
	}
	logger.InfoSkip(ctx, 1, "Trading cycle completed", fields...)
	return result
}
