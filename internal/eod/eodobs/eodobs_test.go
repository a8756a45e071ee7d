package eodobs

import (
	"errors"
	"testing"
	"time"
)

type fakeSummarizer struct {
	path  string
	err   error
	due   bool
	calls int
}

func (f *fakeSummarizer) SummarizeDay(time.Time) (string, error) { f.calls++; return f.path, f.err }
func (f *fakeSummarizer) SummarizeToday() (string, error)        { f.calls++; return f.path, f.err }
func (f *fakeSummarizer) ShouldRunNow() (bool, string)           { return f.due, f.path }
func (f *fakeSummarizer) CSVPath(time.Time) string               { return f.path }

func TestWrapPassesResultsThrough(t *testing.T) {
	f := &fakeSummarizer{path: "reports/2025-01-02.csv", due: true}
	s := Wrap(f)

	p, err := s.SummarizeDay(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil || p != f.path {
		t.Errorf("Expected %s and no error, got %q, %v", f.path, p, err)
	}
	if due, p := s.ShouldRunNow(); !due || p != f.path {
		t.Errorf("Expected due check to pass through, got %v %q", due, p)
	}
	if got := s.CSVPath(time.Now()); got != f.path {
		t.Errorf("Expected CSVPath %s, got %s", f.path, got)
	}
}

func TestWrapReturnsError(t *testing.T) {
	want := errors.New("disk full")
	f := &fakeSummarizer{path: "ignored", err: want}

	p, err := Wrap(f).SummarizeToday()
	if !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
	if p != "" {
		t.Errorf("Expected empty path on error, got %q", p)
	}
	if f.calls != 1 {
		t.Errorf("Expected 1 call, got %d", f.calls)
	}
}
