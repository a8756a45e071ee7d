package noop

import (
	"context"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

// Source is used when no LLM is configured. It always reports neutral
// sentiment with zero confidence.
type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Sentiment(ctx context.Context, symbol string, _ types.MarketSnapshot) (types.SentimentResult, error) {
	logger.Debug(ctx, "Noop sentiment source called - always neutral", "symbol", symbol)
	return types.NeutralSentiment("llm disabled"), nil
}
