// Package zonal computes descriptive statistics of LAI cells selected by a
// land-use class and an elevation band.
package zonal

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats is the box-plot summary of one zone.
type Stats struct {
	MeanLAI      float64 `json:"mean_lai" msgpack:"mean_lai"`
	Min          float64 `json:"min" msgpack:"min"`
	Q1           float64 `json:"q1" msgpack:"q1"`
	Median       float64 `json:"median" msgpack:"median"`
	Q3           float64 `json:"q3" msgpack:"q3"`
	Max          float64 `json:"max" msgpack:"max"`
	LowerWhisker float64 `json:"lower_whisker" msgpack:"lower_whisker"`
	UpperWhisker float64 `json:"upper_whisker" msgpack:"upper_whisker"`
}

// Compute summarizes the LAI cells where landuse == class and
// bands == band. It returns false when no cell matches, and
// rasterio.ErrDimensionMismatch when the three grids differ in length.
func Compute(lai, landuse, bands *raster.Grid, class, band int) (Stats, bool, error) {
	n := len(lai.Data)
	if len(landuse.Data) != n || len(bands.Data) != n {
		return Stats{}, false, fmt.Errorf("zonal: LAI has %d cells, land use %d, bands %d: %w",
			n, len(landuse.Data), len(bands.Data), rasterio.ErrDimensionMismatch)
	}

	var values []float64
	c, b := float64(class), float64(band)
	for i := 0; i < n; i++ {
		if landuse.Data[i] == c && bands.Data[i] == b {
			values = append(values, lai.Data[i])
		}
	}
	if len(values) == 0 {
		return Stats{}, false, nil
	}
	return Describe(values), true, nil
}

// Describe summarizes values, which must be non-empty. Quantiles use linear
// interpolation at position (n-1)p. Any NaN makes every statistic NaN.
func Describe(values []float64) Stats {
	if len(values) == 0 || floats.HasNaN(values) {
		nan := math.NaN()
		return Stats{nan, nan, nan, nan, nan, nan, nan, nan}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1

	return Stats{
		MeanLAI:      stat.Mean(sorted, nil),
		Min:          floats.Min(sorted),
		Q1:           q1,
		Median:       Quantile(sorted, 0.5),
		Q3:           q3,
		Max:          floats.Max(sorted),
		LowerWhisker: q1 - 1.5*iqr,
		UpperWhisker: q3 + 1.5*iqr,
	}
}

// Quantile returns the p-quantile of ascending sorted data using linear
// interpolation between the closest ranks.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Values returns the eight statistics in column order.
func (s Stats) Values() [8]float64 {
	return [8]float64{s.MeanLAI, s.Min, s.Q1, s.Median, s.Q3, s.Max, s.LowerWhisker, s.UpperWhisker}
}

// FromValues is the inverse of Values.
func FromValues(v [8]float64) Stats {
	return Stats{v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7]}
}
