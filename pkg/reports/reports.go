// Package reports persists validation reports, one current document per dataset and stage
package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrReportNotFound is returned when no report exists for a dataset and stage
	ErrReportNotFound = errors.New("report not found")
	// ErrUnknownSink is returned for an unrecognised sink kind
	ErrUnknownSink = errors.New("unknown report sink")
	// ErrInvalidPathTemplate is returned when the report path template cannot be parsed or rendered
	ErrInvalidPathTemplate = errors.New("invalid report path template")
	// ErrInvalidConfig is returned for other invalid report settings
	ErrInvalidConfig = errors.New("invalid report config")
)

// Sink kinds
const (
	SinkFile   = "file"
	SinkRedis  = "redis"
	SinkMemory = "memory"
)

// Sink writes report documents. Writes replace the previous document for the same dataset and stage.
type Sink interface {
	// Write serializes doc and returns the location it was written to
	Write(ctx context.Context, dataset, stage string, doc any) (string, error)
	// Read returns the raw bytes of the current report
	Read(ctx context.Context, dataset, stage string) ([]byte, error)
}

// Run identifies one pipeline execution
type Run struct {
	ID   string
	Date time.Time
}

// DateString formats the run date as YYYY-MM-DD
func (r Run) DateString() string {
	return r.Date.Format("2006-01-02")
}

type runKey struct{}

// NewRun creates a run with a fresh ID. A zero date means today in UTC.
func NewRun(date time.Time) Run {
	if date.IsZero() {
		date = time.Now().UTC()
	}

	return Run{
		ID:   uuid.NewString(),
		Date: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// WithRun attaches run to ctx
func WithRun(ctx context.Context, run Run) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

// RunFromContext returns the run attached to ctx, if any
func RunFromContext(ctx context.Context) (Run, bool) {
	run, ok := ctx.Value(runKey{}).(Run)
	return run, ok
}
