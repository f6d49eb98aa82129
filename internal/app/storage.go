package app

import (
	"context"
	"fmt"

	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/storage/sqlite"
	"github.com/chrissnell/laistats/internal/storage/timescaledb"
	"github.com/chrissnell/laistats/pkg/config"
	"go.uber.org/zap"
)

// OpenSinks connects every configured record sink. An empty result means
// results are only exported as files.
func OpenSinks(ctx context.Context, sc config.StorageData, logger *zap.SugaredLogger) (storage.MultiSink, error) {
	var sinks storage.MultiSink

	if sc.SQLite != nil {
		s, err := sqlite.New(ctx, sc.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite store %s: %w", sc.SQLite.Path, err)
		}
		sinks = append(sinks, s)
	}

	if sc.TimescaleDB != nil {
		t, err := timescaledb.New(ctx, sc.TimescaleDB.ConnectionString, logger)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("opening TimescaleDB store: %w", err)
		}
		sinks = append(sinks, t)
	}

	return sinks, nil
}
