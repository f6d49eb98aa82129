// Package sqlite stores runs, LAI records and adjustment tables in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/zonal"
	"github.com/chrissnell/laistats/pkg/migrate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed RecordSink and ResultReader.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var (
	_ storage.RecordSink   = (*Store)(nil)
	_ storage.ResultReader = (*Store)(nil)
)

// New opens (creating if needed) the database at path and applies pending
// schema migrations.
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := NewMigrator(db, logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Open opens the database at path without touching its schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection keeps the foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewMigrator returns a migrator over the store's embedded schema.
func NewMigrator(db *sql.DB, logger *zap.SugaredLogger) *migrate.Migrator {
	provider := migrate.NewFSProvider(migrationsFS, "migrations", "", migrate.SQLite)
	return migrate.NewMigrator(db, provider, logger)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreRun writes the run and its tables in one transaction.
func (s *Store) StoreRun(ctx context.Context, run storage.Run, tbl records.Table, rows []scenario.Row) error {
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("run id %q: %w", run.ID, err)
	}

	thresholds, err := json.Marshal(nonNil(run.Thresholds))
	if err != nil {
		return err
	}
	labels, err := json.Marshal(nonNilStrings(run.Labels))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, lai_files, thresholds, labels, current_class, target_class)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.LAIFiles,
		string(thresholds), string(labels), run.CurrentClass, run.TargetClass)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lai_records (run_id, date, landuse, elevation_class,
			mean_lai, min, q1, median, q3, max, lower_whisker, upper_whisker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for _, r := range tbl {
		args := []any{run.ID, r.Date.Format(records.DateLayout), r.Landuse, r.ElevationClass}
		for _, v := range r.Stats.Values() {
			args = append(args, nullFloat(v))
		}
		if _, err := recStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
	}

	rowStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO adjustment_rows (run_id, date, elevation_class, landuse_target, landuse_current,
			median_target, median_current, q1_target, q3_target, diff, sum_of_pixels, count_unchanged_pixels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rowStmt.Close()

	for _, r := range rows {
		_, err := rowStmt.ExecContext(ctx,
			run.ID, r.Date.Format(records.DateLayout), r.ElevationClass, r.LanduseTarget, r.LanduseCurrent,
			nullFloat(r.MedianTarget), nullFloat(r.MedianCurrent), nullFloat(r.Q1Target), nullFloat(r.Q3Target),
			nullFloat(r.Diff), nullInt(r.SumOfPixels), nullInt(r.CountUnchangedPixels))
		if err != nil {
			return fmt.Errorf("inserting adjustment row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Infow("stored run", "run", run.ID, "records", len(tbl), "adjustment_rows", len(rows))
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]storage.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, lai_files, thresholds, labels, current_class, target_class
		FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Run
	for rows.Next() {
		var r storage.Run
		var started, thresholds, labels string
		if err := rows.Scan(&r.ID, &started, &r.LAIFiles, &thresholds, &labels, &r.CurrentClass, &r.TargetClass); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(thresholds), &r.Thresholds); err != nil {
			return nil, fmt.Errorf("run %s thresholds: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(labels), &r.Labels); err != nil {
			return nil, fmt.Errorf("run %s labels: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (storage.Run, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return storage.Run{}, err
	}
	if len(runs) == 0 {
		return storage.Run{}, fmt.Errorf("no runs stored: %w", storage.ErrNotFound)
	}
	return runs[0], nil
}

// Records returns the records matching q in insertion order.
func (s *Store) Records(ctx context.Context, q storage.RecordQuery) (records.Table, error) {
	var where []string
	var args []any
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Landuse != nil {
		where = append(where, "landuse = ?")
		args = append(args, *q.Landuse)
	}
	if q.ElevationClass != "" {
		where = append(where, "elevation_class = ?")
		args = append(args, q.ElevationClass)
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.From.Format(records.DateLayout))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, q.To.Format(records.DateLayout))
	}

	query := `SELECT date, landuse, elevation_class, mean_lai, min, q1, median, q3, max,
		lower_whisker, upper_whisker FROM lai_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out records.Table
	for rows.Next() {
		var r records.Record
		var date string
		var v [8]sql.NullFloat64
		if err := rows.Scan(&date, &r.Landuse, &r.ElevationClass,
			&v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6], &v[7]); err != nil {
			return nil, err
		}
		if r.Date, err = time.Parse(records.DateLayout, date); err != nil {
			return nil, err
		}
		var vals [8]float64
		for i := range v {
			vals[i] = floatOrNaN(v[i])
		}
		r.Stats = zonal.FromValues(vals)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AdjustmentRows returns the adjustment table of a run.
func (s *Store) AdjustmentRows(ctx context.Context, runID string) ([]scenario.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, elevation_class, landuse_target, landuse_current, median_target, median_current,
			q1_target, q3_target, diff, sum_of_pixels, count_unchanged_pixels
		FROM adjustment_rows WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scenario.Row
	for rows.Next() {
		var r scenario.Row
		var date string
		var mt, mc, q1, q3, diff sql.NullFloat64
		var sum, unchanged sql.NullInt64
		if err := rows.Scan(&date, &r.ElevationClass, &r.LanduseTarget, &r.LanduseCurrent,
			&mt, &mc, &q1, &q3, &diff, &sum, &unchanged); err != nil {
			return nil, err
		}
		if r.Date, err = time.Parse(records.DateLayout, date); err != nil {
			return nil, err
		}
		r.MedianTarget, r.MedianCurrent = floatOrNaN(mt), floatOrNaN(mc)
		r.Q1Target, r.Q3Target, r.Diff = floatOrNaN(q1), floatOrNaN(q3), floatOrNaN(diff)
		r.SumOfPixels, r.CountUnchangedPixels = intPtr(sum), intPtr(unchanged)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its tables.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	return nil
}

// SQLite stores NaN as NULL; keep that explicit.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
