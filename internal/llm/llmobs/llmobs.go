package llmobs

import (
	"context"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/trace"
	"crypto-trading-assistant/internal/types"
)

// observableSource wraps a SentimentSource with observability (logging & tracing)
type observableSource struct {
	source interfaces.SentimentSource
}

// Compile-time interface check
var _ interfaces.SentimentSource = (*observableSource)(nil)

// Wrap wraps a sentiment source with observability middleware
func Wrap(source interfaces.SentimentSource) interfaces.SentimentSource {
	return &observableSource{source: source}
}

func (o *observableSource) Sentiment(ctx context.Context, symbol string, snap types.MarketSnapshot) (types.SentimentResult, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Sentiment")
	defer span.End()

	// Skip(1) reports the engine as the caller, not this wrapper
	logger.DebugSkip(ctx, 1, "Requesting sentiment",
		"symbol", symbol,
		"price", snap.Price,
	)

	res, err := o.source.Sentiment(ctx, symbol, snap)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get sentiment", err,
			"symbol", symbol,
		)
		return types.SentimentResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Sentiment received",
		"symbol", symbol,
		"sentiment", res.OverallSentiment,
		"score", res.SentimentScore,
		"confidence", res.Confidence,
		"risk", res.RiskAssessment,
	)
	return res, nil
}
