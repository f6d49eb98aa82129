package scenario

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/laistats/internal/elevation"
	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/zonal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	current = 312
	target  = 311
)

var (
	feb14  = time.Date(2001, 2, 14, 0, 0, 0, 0, time.UTC)
	feb22  = time.Date(2001, 2, 22, 0, 0, 0, 0, time.UTC)
	labels = []string{"less_than_450", "greater_than_450"}
)

func rec(date time.Time, lu int, elev string, median, q1, q3 float64) records.Record {
	return records.Record{
		Date:           date,
		Landuse:        lu,
		ElevationClass: elev,
		Stats:          zonal.Stats{Median: median, Q1: q1, Q3: q3},
	}
}

func meta(cols int) raster.Meta {
	return raster.Meta{
		Rows:      1,
		Cols:      cols,
		Transform: raster.GeoTransform{0, 1, 0, 0, 0, -1},
		CRS:       "+proj=longlat +datum=WGS84 +no_defs",
	}
}

func grid(values ...float64) *raster.Grid {
	g, _ := raster.FromData(meta(len(values)), values)
	return g
}

func TestBuildRatioTable(t *testing.T) {
	tbl := records.Table{
		rec(feb14, current, "less_than_450", 2, 1, 3),
		rec(feb14, target, "less_than_450", 4, 3, 6),
		rec(feb14, target, "greater_than_450", 5, 4, 6),
		rec(feb22, current, "greater_than_450", 0, 0, 0),
		rec(feb22, target, "greater_than_450", 3, 2, 4),
	}

	rows, err := BuildRatioTable(tbl, current, target)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, feb14, r.Date)
	assert.Equal(t, "less_than_450", r.ElevationClass)
	assert.Equal(t, target, r.LanduseTarget)
	assert.Equal(t, current, r.LanduseCurrent)
	assert.Equal(t, 2.0, r.Diff)
	assert.Equal(t, 3.0, r.Q1Target)
	assert.Equal(t, 6.0, r.Q3Target)
	assert.Nil(t, r.SumOfPixels)
	assert.Nil(t, r.CountUnchangedPixels)

	// Zero current median keeps IEEE semantics.
	assert.True(t, math.IsInf(rows[1].Diff, 1))
}

func TestBuildRatioTableRejectsDuplicateKeys(t *testing.T) {
	// Two rasters of the same day produce two records per class and band.
	tests := []struct {
		name string
		tbl  records.Table
	}{
		{"current", records.Table{
			rec(feb14, current, "less_than_450", 2, 1, 3),
			rec(feb14, current, "less_than_450", 1, 0, 2),
			rec(feb14, target, "less_than_450", 4, 3, 6),
		}},
		{"target", records.Table{
			rec(feb14, current, "less_than_450", 2, 1, 3),
			rec(feb14, target, "less_than_450", 4, 3, 6),
			rec(feb14, target, "less_than_450", 10, 8, 12),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := BuildRatioTable(tt.tbl, current, target)
			assert.ErrorIs(t, err, ErrDuplicateKey)
			assert.Nil(t, rows)
		})
	}

	// The same band on different days is not a duplicate.
	rows, err := BuildRatioTable(records.Table{
		rec(feb14, current, "less_than_450", 2, 1, 3),
		rec(feb22, current, "less_than_450", 1, 0, 2),
		rec(feb14, target, "less_than_450", 4, 3, 6),
		rec(feb22, target, "less_than_450", 10, 8, 12),
	}, current, target)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2.0, rows[0].Diff)
	assert.Equal(t, 10.0, rows[1].Diff)
}

func TestAdjustRaster(t *testing.T) {
	rows := []Row{{
		Date:           feb14,
		ElevationClass: "less_than_450",
		LanduseTarget:  target,
		LanduseCurrent: current,
		MedianTarget:   4,
		MedianCurrent:  2,
		Q1Target:       3,
		Q3Target:       6,
		Diff:           2,
	}}

	lai := grid(2.0, 1.0, 2.0, 5.0)
	landuse := grid(current, current, target, current)
	bands := grid(1, 1, 1, 2)

	res, err := AdjustRaster(feb14, lai, landuse, bands, rows, labels)
	require.NoError(t, err)
	require.True(t, res.Matched)

	assert.Equal(t, []float64{4.0, 1.0, 2.0, 5.0}, res.Adjusted.Data)

	assert.True(t, math.IsNaN(res.Unchanged.Data[0]))
	assert.Equal(t, 1.0, res.Unchanged.Data[1])
	assert.True(t, math.IsNaN(res.Unchanged.Data[2]))
	assert.True(t, math.IsNaN(res.Unchanged.Data[3]))

	require.Len(t, res.Audits, 1)
	assert.Equal(t, 2, res.Audits[0].SumOfPixels)
	assert.Equal(t, 1, res.Audits[0].CountUnchangedPixels)

	// The input grid is untouched.
	assert.Equal(t, []float64{2.0, 1.0, 2.0, 5.0}, lai.Data)

	merged := MergeAudits(rows, res.Audits)
	require.NotNil(t, merged[0].SumOfPixels)
	assert.Equal(t, 2, *merged[0].SumOfPixels)
	assert.Equal(t, 1, *merged[0].CountUnchangedPixels)
	assert.Nil(t, rows[0].SumOfPixels)
}

func TestAdjustRasterPassThrough(t *testing.T) {
	rows := []Row{{Date: feb22, ElevationClass: "less_than_450", LanduseCurrent: current, Diff: 2, Q1Target: 0, Q3Target: 10}}
	lai := grid(1, 2)

	res, err := AdjustRaster(feb14, lai, grid(current, current), grid(1, 1), rows, labels)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.Audits)
	assert.Equal(t, lai.Data, res.Adjusted.Data)
}

func TestAdjustRasterNonFiniteRatioRejectsAll(t *testing.T) {
	rows := []Row{{Date: feb14, ElevationClass: "less_than_450", LanduseCurrent: current, Diff: math.Inf(1), Q1Target: 1, Q3Target: 3}}

	res, err := AdjustRaster(feb14, grid(1, 2), grid(current, current), grid(1, 1), rows, labels)
	require.NoError(t, err)
	require.Len(t, res.Audits, 1)
	assert.Equal(t, 2, res.Audits[0].SumOfPixels)
	assert.Equal(t, 2, res.Audits[0].CountUnchangedPixels)
}

func TestAdjustRasterErrors(t *testing.T) {
	t.Run("shape mismatch", func(t *testing.T) {
		_, err := AdjustRaster(feb14, grid(1, 2), grid(1), grid(1, 1), nil, labels)
		assert.ErrorIs(t, err, rasterio.ErrDimensionMismatch)
	})

	t.Run("unknown elevation class", func(t *testing.T) {
		rows := []Row{{Date: feb14, ElevationClass: "100-200", LanduseCurrent: current}}
		_, err := AdjustRaster(feb14, grid(1), grid(current), grid(1), rows, labels)
		assert.Error(t, err)
	})
}

func TestMergeAuditsSums(t *testing.T) {
	rows := []Row{
		{Date: feb14, ElevationClass: "less_than_450"},
		{Date: feb22, ElevationClass: "less_than_450"},
	}
	audits := []Audit{
		{Date: feb14, ElevationClass: "less_than_450", SumOfPixels: 3, CountUnchangedPixels: 1},
		{Date: feb14, ElevationClass: "less_than_450", SumOfPixels: 2, CountUnchangedPixels: 2},
	}

	out := MergeAudits(rows, audits)
	require.Len(t, out, 2)
	assert.Equal(t, 5, *out[0].SumOfPixels)
	assert.Equal(t, 3, *out[0].CountUnchangedPixels)
	assert.Nil(t, out[1].SumOfPixels)
}

func TestEngineRun(t *testing.T) {
	store := rasterio.NewStore(zap.NewNop().Sugar())
	dir := t.TempDir()
	m := meta(2)

	adjusted := filepath.Join(dir, "lai_2001045_v2.grid")
	untouched := filepath.Join(dir, "lai_2001053_v2.grid")
	require.NoError(t, store.WriteSingleBand(adjusted, grid(2, 1), m))
	require.NoError(t, store.WriteSingleBand(untouched, grid(2, 1), m))

	class, err := elevation.Classify(grid(100, 100), []int{450})
	require.NoError(t, err)

	rows := []Row{{Date: feb14, ElevationClass: "less_than_450", LanduseCurrent: current, Diff: 2, Q1Target: 3, Q3Target: 6}}

	outDir := filepath.Join(dir, "scenario")
	eng := NewEngine(store, outDir, zap.NewNop().Sugar())
	res, err := eng.Run(context.Background(), []string{adjusted, untouched}, grid(current, current), class, rows)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(outDir, "lai_2001045_v2_adjusted.grid")}, res.Adjusted)
	assert.Equal(t, []string{untouched}, res.PassThrough)
	assert.Equal(t, 2, *res.Rows[0].SumOfPixels)
	assert.Equal(t, 1, *res.Rows[0].CountUnchangedPixels)

	got, err := store.ReadSingleBand(res.Adjusted[0])
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 1}, got.Data)

	unch, err := store.ReadSingleBand(filepath.Join(outDir, "lai_2001045_v2_unchanged.grid"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(unch.Data[0]))
	assert.Equal(t, 1.0, unch.Data[1])
}

func TestWriteCSV(t *testing.T) {
	n, u := 2, 1
	rows := []Row{
		{Date: feb14, ElevationClass: "less_than_450", LanduseTarget: target, LanduseCurrent: current,
			MedianTarget: 4, MedianCurrent: 2, Q1Target: 3, Q3Target: 6, Diff: 2, SumOfPixels: &n, CountUnchangedPixels: &u},
		{Date: feb22, ElevationClass: "greater_than_450", LanduseTarget: target, LanduseCurrent: current, Diff: math.Inf(1)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2001-02-14,less_than_450,311,312,4,2,3,6,2,2,1", lines[1])
	assert.Equal(t, "2001-02-22,greater_than_450,311,312,0,0,0,0,+Inf,,", lines[2])
}
