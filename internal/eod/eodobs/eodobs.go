package eodobs

import (
	"context"
	"time"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/trace"
)

type summarizer struct {
	next interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*summarizer)(nil)

// Wrap adds a span and start/finish logs around each summary run.
func Wrap(next interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &summarizer{next: next}
}

func (s *summarizer) SummarizeDay(day time.Time) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeDay")
	defer span.End()
	return s.report(ctx, day, func() (string, error) { return s.next.SummarizeDay(day) })
}

func (s *summarizer) SummarizeToday() (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeToday")
	defer span.End()
	return s.report(ctx, time.Now(), s.next.SummarizeToday)
}

// report runs fn and logs the outcome against the caller of the exported
// method.
func (s *summarizer) report(ctx context.Context, day time.Time, fn func() (string, error)) (string, error) {
	date := day.Format("2006-01-02")
	logger.DebugSkip(ctx, 2, "Writing daily summary", "date", date)

	p, err := fn()
	switch {
	case err != nil:
		logger.ErrorWithErrSkip(ctx, 2, "Daily summary failed", err, "date", date)
		return "", err
	case p == "":
		logger.InfoSkip(ctx, 2, "No trades to summarize", "date", date)
	default:
		logger.InfoSkip(ctx, 2, "Daily summary written", "date", date, "csv_path", p)
	}
	return p, nil
}

func (s *summarizer) ShouldRunNow() (bool, string) {
	due, p := s.next.ShouldRunNow()
	logger.DebugSkip(context.Background(), 1, "Daily summary due check", "due", due, "csv_path", p)
	return due, p
}

func (s *summarizer) CSVPath(day time.Time) string { return s.next.CSVPath(day) }
