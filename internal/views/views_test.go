package views

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/zonal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(y int, m time.Month, d, lu int, elev string, mean float64) records.Record {
	return records.Record{
		Date:           time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Landuse:        lu,
		ElevationClass: elev,
		Stats: zonal.Stats{
			MeanLAI: mean, Min: mean - 1, Q1: mean - 0.5, Median: mean,
			Q3: mean + 0.5, Max: mean + 1, LowerWhisker: mean - 2, UpperWhisker: mean + 2,
		},
	}
}

func table() records.Table {
	return records.Table{
		rec(2001, 2, 14, 311, "less_than_450", 1),
		rec(2001, 2, 14, 211, "less_than_450", 2),
		rec(2001, 2, 22, 311, "less_than_450", 3),
		rec(2002, 2, 14, 311, "less_than_450", 5),
		rec(2002, 2, 14, 311, "450-600", 6),
	}
}

func sortTable(t records.Table) {
	sort.Slice(t, func(i, j int) bool {
		a, b := t[i], t[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Landuse != b.Landuse {
			return a.Landuse < b.Landuse
		}
		return a.ElevationClass < b.ElevationClass
	})
}

func TestSplitMergeRoundTrip(t *testing.T) {
	tbl := table()
	clusters := SplitClusters(tbl)
	require.Len(t, clusters, 4)

	assert.Equal(t, ClusterKey{2001, 211, "less_than_450"}, clusters[0].ClusterKey)
	assert.Equal(t, ClusterKey{2001, 311, "less_than_450"}, clusters[1].ClusterKey)
	assert.Len(t, clusters[1].Rows, 2)

	merged := MergeClusters(clusters)
	sortTable(merged)
	sortTable(tbl)
	assert.Equal(t, tbl, merged)
}

func TestClusterFilename(t *testing.T) {
	k := ClusterKey{Year: 2001, Landuse: 311, ElevationClass: "450-600"}
	name := ClusterFilename(k)
	assert.Equal(t, "lai_data_2001_311_450-600.csv", name)

	got, err := ParseClusterFilename(filepath.Join("results", "clusters", name))
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestParseClusterFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    ClusterKey
		wantErr bool
	}{
		{"lai_data_2003_211_100-200.csv", ClusterKey{2003, 211, "100-200"}, false},
		{"lai_data_2003_211_less_than_450.csv", ClusterKey{2003, 211, "less_than_450"}, false},
		{"lai_data_2003_211_greater_than_450.csv", ClusterKey{2003, 211, "greater_than_450"}, false},
		{"lai_data_2003_211_100-200.txt", ClusterKey{}, true},
		{"daily_lai.csv", ClusterKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClusterFilename(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReadClusterDir(t *testing.T) {
	dir := t.TempDir()
	clusters := SplitClusters(table())

	paths, err := WriteClusters(dir, clusters)
	require.NoError(t, err)
	assert.Len(t, paths, len(clusters))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	back, err := ReadClusterDir(dir)
	require.NoError(t, err)
	assert.Equal(t, clusters, back)
}

func TestCharacteristicYear(t *testing.T) {
	days := CharacteristicYear(table())
	require.Len(t, days, 4)

	// Sorted by month-day, then landuse, then elevation class.
	assert.Equal(t, "02-14", days[0].MonthDay)
	assert.Equal(t, 211, days[0].Landuse)
	assert.Equal(t, "450-600", days[1].ElevationClass)

	d := days[2]
	assert.Equal(t, "02-14", d.MonthDay)
	assert.Equal(t, 311, d.Landuse)
	assert.Equal(t, "less_than_450", d.ElevationClass)
	assert.Equal(t, 2, d.Years)
	assert.Equal(t, 3.0, d.MeanLAI)
	assert.Equal(t, 2.5, d.Q1)
	assert.Equal(t, 5.0, d.UpperWhisker)

	assert.Equal(t, "02-22", days[3].MonthDay)
	assert.Equal(t, 1, days[3].Years)
}

func TestWriteCharacteristicCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCharacteristicCSV(&buf, CharacteristicYear(table())[3:]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Day_of_Year,Landuse,Elevation_class", strings.Join(strings.Split(lines[0], ",")[:3], ","))
	assert.Equal(t, "02-22,311,less_than_450,3,2,2.5,3,3.5,4,1,5", lines[1])
}

func TestCharacteristicYearSkipsNaNYears(t *testing.T) {
	atYear := func(year int, mean float64) records.Record {
		return records.Record{
			Date:           time.Date(year, 2, 14, 0, 0, 0, 0, time.UTC),
			Landuse:        311,
			ElevationClass: "less_than_450",
			Stats:          zonal.Stats{MeanLAI: mean, Median: mean},
		}
	}
	nan := math.NaN()

	days := CharacteristicYear(records.Table{atYear(2001, 2), atYear(2002, nan), atYear(2003, 4)})
	require.Len(t, days, 1)
	assert.Equal(t, 3, days[0].Years)
	assert.Equal(t, 3.0, days[0].MeanLAI)
	assert.Equal(t, 3.0, days[0].Median)

	days = CharacteristicYear(records.Table{atYear(2001, nan), atYear(2002, nan)})
	require.Len(t, days, 1)
	assert.True(t, math.IsNaN(days[0].MeanLAI))
}
