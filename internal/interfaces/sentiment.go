package interfaces

import (
	"context"

	"crypto-trading-assistant/internal/types"
)

// SentimentSource returns an LLM-derived sentiment read for a symbol.
// Malformed model output must degrade to types.NeutralSentiment, never an error.
type SentimentSource interface {
	Sentiment(ctx context.Context, symbol string, snap types.MarketSnapshot) (types.SentimentResult, error)
}

// NewsScorer returns a news-derived bullishness score in [0,1].
type NewsScorer interface {
	NewsScore(ctx context.Context, symbol string) (float64, error)
}
