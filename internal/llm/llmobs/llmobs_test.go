package llmobs

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

type stubSource struct {
	res types.SentimentResult
	err error
}

func (s stubSource) Sentiment(context.Context, string, types.MarketSnapshot) (types.SentimentResult, error) {
	return s.res, s.err
}

func TestWrapPassesThroughAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger.InitWithCore(core)
	defer logger.InitWithCore(zapcore.NewNopCore())

	want := types.SentimentResult{OverallSentiment: types.Bullish, SentimentScore: 0.8, Confidence: 0.6, RiskAssessment: types.RiskLow}
	got, err := Wrap(stubSource{res: want}).Sentiment(context.Background(), "BTCUSDT", types.MarketSnapshot{Price: 1})
	if err != nil {
		t.Fatalf("Sentiment failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if logs.FilterMessage("Sentiment received").Len() != 1 {
		t.Errorf("Expected one 'Sentiment received' entry, got %d", logs.FilterMessage("Sentiment received").Len())
	}
}

func TestWrapLogsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger.InitWithCore(core)
	defer logger.InitWithCore(zapcore.NewNopCore())

	_, err := Wrap(stubSource{err: types.ErrCollaboratorUnavailable}).Sentiment(context.Background(), "ETHUSDT", types.MarketSnapshot{})
	if !errors.Is(err, types.ErrCollaboratorUnavailable) {
		t.Fatalf("Expected error passed through, got %v", err)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Errorf("Expected one error entry, got %d", logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	}
}
