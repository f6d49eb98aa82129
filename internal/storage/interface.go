// Package storage defines the persistence backends for aggregation results.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Run describes one pipeline execution.
type Run struct {
	ID         string    `json:"id" msgpack:"id"`
	StartedAt  time.Time `json:"started_at" msgpack:"started_at"`
	LAIFiles   int       `json:"lai_files" msgpack:"lai_files"`
	Thresholds []int     `json:"thresholds" msgpack:"thresholds"`
	Labels     []string  `json:"labels" msgpack:"labels"`
	// Scenario classes; zero when no scenario ran.
	CurrentClass int `json:"current_class,omitempty" msgpack:"current_class,omitempty"`
	TargetClass  int `json:"target_class,omitempty" msgpack:"target_class,omitempty"`
}

// RecordSink persists the results of a run.
type RecordSink interface {
	StoreRun(ctx context.Context, run Run, tbl records.Table, rows []scenario.Row) error
	Close() error
}

// RecordQuery narrows a record lookup. Zero fields match everything.
type RecordQuery struct {
	RunID          string
	Landuse        *int
	ElevationClass string
	From, To       time.Time
}

// ResultReader serves stored results.
type ResultReader interface {
	ListRuns(ctx context.Context) ([]Run, error)
	LatestRun(ctx context.Context) (Run, error)
	Records(ctx context.Context, q RecordQuery) (records.Table, error)
	AdjustmentRows(ctx context.Context, runID string) ([]scenario.Row, error)
}

// MultiSink fans a run out to several sinks.
type MultiSink []RecordSink

// StoreRun stores into every sink, stopping at the first error.
func (m MultiSink) StoreRun(ctx context.Context, run Run, tbl records.Table, rows []scenario.Row) error {
	for _, s := range m {
		if err := s.StoreRun(ctx, run, tbl, rows); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
