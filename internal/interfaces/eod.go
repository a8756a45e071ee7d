package interfaces

import "time"

// EodSummarizer writes the per-symbol daily CSV from the trade journal. An
// empty path with a nil error means nothing was traded that day.
type EodSummarizer interface {
	SummarizeDay(day time.Time) (csvPath string, err error)
	SummarizeToday() (csvPath string, err error)
	// ShouldRunNow reports whether the cutoff has passed and today's CSV is
	// still missing.
	ShouldRunNow() (due bool, csvPath string)
	CSVPath(day time.Time) string
}
