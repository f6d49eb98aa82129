package timescaledb

import (
	"testing"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/zonal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToModels(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	date := time.Date(2001, 2, 14, 0, 0, 0, 0, time.UTC)
	run := storage.Run{
		ID:        "7c2b4f1e-9d4a-4c36-8b0e-5a1f0e3d2c11",
		StartedAt: time.Date(2024, 5, 1, 13, 0, 0, 0, loc),
		LAIFiles:  1,
	}
	tbl := records.Table{{Date: date, Landuse: 311, ElevationClass: "less_than_450", Stats: zonal.Describe([]float64{1, 2, 3, 4})}}
	n := 3
	rows := []scenario.Row{{Date: date, ElevationClass: "less_than_450", LanduseTarget: 311, LanduseCurrent: 312, Diff: 2, SumOfPixels: &n}}

	runModel, recs, adj, err := toModels(run, tbl, rows)
	require.NoError(t, err)

	assert.Equal(t, "[]", runModel.Thresholds)
	assert.Equal(t, "[]", runModel.Labels)
	assert.Equal(t, time.UTC, runModel.StartedAt.Location())
	assert.Equal(t, 12, runModel.StartedAt.Hour())

	require.Len(t, recs, 1)
	assert.Equal(t, run.ID, recs[0].RunID)
	assert.Equal(t, 2.5, recs[0].Median)
	assert.Equal(t, -0.5, recs[0].LowerWhisker)

	require.Len(t, adj, 1)
	assert.Equal(t, 3, *adj[0].SumOfPixels)
	assert.Nil(t, adj[0].CountUnchangedPixels)
}
