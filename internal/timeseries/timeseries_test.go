package timeseries

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		path    string
		want    time.Time
		wantErr bool
	}{
		{"lai_2001045_v2", time.Date(2001, 2, 14, 0, 0, 0, 0, time.UTC), false},
		{"/data/Vegetation/LAI_2004366_x.grid", time.Date(2004, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"lai_2001001_a.grid", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"x_2001366_y", time.Time{}, true},
		{"lai_2001000_v2", time.Time{}, true},
		{"lai_20010451_v2", time.Time{}, true},
		{"lai_2001a45_v2", time.Time{}, true},
		{"nodate", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParseDate(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDateParse)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v", got)
		})
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

func TestExtractGridOrder(t *testing.T) {
	m := meta(6)
	lai := &raster.Grid{Meta: m, Data: []float64{1, 2, 3, 4, 5, 6}}
	landuse := &raster.Grid{Meta: m, Data: []float64{311, 211, 311, 211, 0, 311}}
	bands := &raster.Grid{Meta: m, Data: []float64{2, 1, 1, 2, 1, 2}}
	labels := []string{"less_than_450", "greater_than_450"}
	date := time.Date(2001, 2, 14, 0, 0, 0, 0, time.UTC)

	tbl, err := ExtractGrid(date, lai, landuse, bands, labels)
	require.NoError(t, err)

	type key struct {
		lu   int
		elev string
	}
	var got []key
	for _, r := range tbl {
		got = append(got, key{r.Landuse, r.ElevationClass})
		assert.Equal(t, date, r.Date)
	}
	assert.Equal(t, []key{
		{0, "less_than_450"},
		{211, "less_than_450"},
		{211, "greater_than_450"},
		{311, "less_than_450"},
		{311, "greater_than_450"},
	}, got)

	// Class 311, band 2 holds LAI 1 and 6.
	assert.Equal(t, 3.5, tbl[4].MeanLAI)
}

func TestExtractGridShapeMismatch(t *testing.T) {
	lai := raster.NewGrid(meta(2))
	other := raster.NewGrid(meta(3))
	_, err := ExtractGrid(time.Now(), lai, other, other, []string{"a", "b"})
	assert.ErrorIs(t, err, rasterio.ErrDimensionMismatch)
}

func TestExtract(t *testing.T) {
	store := rasterio.NewStore(zap.NewNop().Sugar())
	dir := t.TempDir()
	m := meta(2)

	paths := []string{
		filepath.Join(dir, "lai_2001045_v2.grid"),
		filepath.Join(dir, "lai_2001053_v2.grid"),
	}
	for i, p := range paths {
		g := &raster.Grid{Meta: m, Data: []float64{float64(i + 1), float64(i + 2)}}
		require.NoError(t, store.WriteSingleBand(p, g, m))
	}

	landuse := &raster.Grid{Meta: m, Data: []float64{311, 311}}
	bands := &raster.Grid{Meta: m, Data: []float64{1, 1}}

	ex := NewExtractor(store, zap.NewNop().Sugar())
	tbl, err := ex.Extract(context.Background(), paths, landuse, bands, []string{"less_than_450", "greater_than_450"})
	require.NoError(t, err)
	require.Len(t, tbl, 2)
	assert.Equal(t, time.Date(2001, 2, 14, 0, 0, 0, 0, time.UTC), tbl[0].Date)
	assert.Equal(t, time.Date(2001, 2, 22, 0, 0, 0, 0, time.UTC), tbl[1].Date)
	assert.Equal(t, 1.5, tbl[0].Median)
	assert.Equal(t, 2.5, tbl[1].Median)
}

func TestExtractBadName(t *testing.T) {
	ex := NewExtractor(rasterio.NewStore(zap.NewNop().Sugar()), nil)
	m := meta(1)
	g := raster.NewGrid(m)
	_, err := ex.Extract(context.Background(), []string{"landuse.grid"}, g, g, []string{"a"})
	assert.ErrorIs(t, err, ErrDateParse)
}
