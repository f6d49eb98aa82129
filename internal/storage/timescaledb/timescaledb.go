// Package timescaledb stores LAI records in a TimescaleDB hypertable for
// long-term series across runs.
package timescaledb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chrissnell/laistats/internal/database"
	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const batchSize = 500

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

var _ storage.RecordSink = (*Storage)(nil)

// New connects to TimescaleDB and creates the schema if needed
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}

	t := &Storage{TimescaleDBConn: db, logger: logger}
	if err := t.createSchema(ctx); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Storage) createSchema(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"TimescaleDB extension", createExtensionSQL},
		{"runs table", createRunsTableSQL},
		{"records table", createRecordsTableSQL},
		{"records hypertable", createHypertableSQL},
		{"records index", createRecordsIndexSQL},
		{"adjustment table", createAdjustmentTableSQL},
	}
	for _, s := range steps {
		t.logger.Infof("creating %s...", s.name)
		if err := t.TimescaleDBConn.WithContext(ctx).Exec(s.sql).Error; err != nil {
			return fmt.Errorf("could not create %s: %w", s.name, err)
		}
	}
	return nil
}

// StoreRun inserts the run, its records and its adjustment rows in one
// transaction.
func (t *Storage) StoreRun(ctx context.Context, run storage.Run, tbl records.Table, rows []scenario.Row) error {
	runModel, recs, adj, err := toModels(run, tbl, rows)
	if err != nil {
		return err
	}

	err = t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&runModel).Error; err != nil {
			return fmt.Errorf("storing run: %w", err)
		}
		if len(recs) > 0 {
			if err := tx.CreateInBatches(recs, batchSize).Error; err != nil {
				return fmt.Errorf("storing records: %w", err)
			}
		}
		if len(adj) > 0 {
			if err := tx.CreateInBatches(adj, batchSize).Error; err != nil {
				return fmt.Errorf("storing adjustment rows: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		t.logger.Errorf("could not store run %s: %v", run.ID, err)
		return err
	}

	t.logger.Infow("stored run in TimescaleDB", "run", run.ID, "records", len(recs), "adjustment_rows", len(adj))
	return nil
}

// Close releases the underlying connection pool.
func (t *Storage) Close() error {
	if t.TimescaleDBConn == nil {
		return nil
	}
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModels(run storage.Run, tbl records.Table, rows []scenario.Row) (database.RunModel, []database.LAIRecordModel, []database.AdjustmentRowModel, error) {
	thresholds := run.Thresholds
	if thresholds == nil {
		thresholds = []int{}
	}
	labels := run.Labels
	if labels == nil {
		labels = []string{}
	}
	tj, err := json.Marshal(thresholds)
	if err != nil {
		return database.RunModel{}, nil, nil, err
	}
	lj, err := json.Marshal(labels)
	if err != nil {
		return database.RunModel{}, nil, nil, err
	}

	runModel := database.RunModel{
		ID:           run.ID,
		StartedAt:    run.StartedAt.UTC(),
		LAIFiles:     run.LAIFiles,
		Thresholds:   string(tj),
		Labels:       string(lj),
		CurrentClass: run.CurrentClass,
		TargetClass:  run.TargetClass,
	}

	recs := make([]database.LAIRecordModel, 0, len(tbl))
	for _, r := range tbl {
		recs = append(recs, database.LAIRecordModel{
			Time:           r.Date.UTC(),
			RunID:          run.ID,
			Landuse:        r.Landuse,
			ElevationClass: r.ElevationClass,
			MeanLAI:        r.MeanLAI,
			Min:            r.Min,
			Q1:             r.Q1,
			Median:         r.Median,
			Q3:             r.Q3,
			Max:            r.Max,
			LowerWhisker:   r.LowerWhisker,
			UpperWhisker:   r.UpperWhisker,
		})
	}

	adj := make([]database.AdjustmentRowModel, 0, len(rows))
	for _, r := range rows {
		adj = append(adj, database.AdjustmentRowModel{
			Time:                 r.Date.UTC(),
			RunID:                run.ID,
			ElevationClass:       r.ElevationClass,
			LanduseTarget:        r.LanduseTarget,
			LanduseCurrent:       r.LanduseCurrent,
			MedianTarget:         r.MedianTarget,
			MedianCurrent:        r.MedianCurrent,
			Q1Target:             r.Q1Target,
			Q3Target:             r.Q3Target,
			Diff:                 r.Diff,
			SumOfPixels:          r.SumOfPixels,
			CountUnchangedPixels: r.CountUnchangedPixels,
		})
	}
	return runModel, recs, adj, nil
}
