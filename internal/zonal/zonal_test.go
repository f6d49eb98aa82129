package zonal

import (
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
)

const epsilon = 1e-9

func grid(values ...float64) *raster.Grid {
	g, _ := raster.FromData(raster.Meta{Rows: 1, Cols: len(values)}, values)
	return g
}

func TestCompute(t *testing.T) {
	lai := grid(1, 2, 3, 4, 9, 9)
	landuse := grid(311, 311, 311, 311, 211, 311)
	bands := grid(1, 1, 1, 1, 1, 2)

	got, ok, err := Compute(lai, landuse, bands, 311, 1)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !ok {
		t.Fatal("Compute() found no cells")
	}

	want := Stats{
		MeanLAI:      2.5,
		Min:          1,
		Q1:           1.75,
		Median:       2.5,
		Q3:           3.25,
		Max:          4,
		LowerWhisker: -0.5,
		UpperWhisker: 5.5,
	}
	gv, wv := got.Values(), want.Values()
	names := []string{"mean", "min", "q1", "median", "q3", "max", "lower", "upper"}
	for i := range gv {
		if math.Abs(gv[i]-wv[i]) > epsilon {
			t.Errorf("%s = %v, want %v", names[i], gv[i], wv[i])
		}
	}
}

func TestComputeEmptyMask(t *testing.T) {
	lai := grid(1, 2)
	landuse := grid(311, 311)
	bands := grid(1, 1)

	if _, ok, _ := Compute(lai, landuse, bands, 211, 1); ok {
		t.Error("Compute() reported cells for an absent class")
	}
	if _, ok, _ := Compute(lai, landuse, bands, 311, 2); ok {
		t.Error("Compute() reported cells for an absent band")
	}
}

func TestComputeShapeMismatch(t *testing.T) {
	_, ok, err := Compute(grid(1, 2, 3), grid(311, 311), grid(1, 1, 1), 311, 1)
	if !errors.Is(err, rasterio.ErrDimensionMismatch) {
		t.Errorf("Compute() error = %v, want ErrDimensionMismatch", err)
	}
	if ok {
		t.Error("Compute() reported cells for mismatched grids")
	}
}

func TestComputeOrderIndependent(t *testing.T) {
	landuse := grid(1, 1, 1, 1, 1)
	bands := grid(1, 1, 1, 1, 1)

	a, _, _ := Compute(grid(5, 1, 4, 2, 3), landuse, bands, 1, 1)
	b, _, _ := Compute(grid(1, 2, 3, 4, 5), landuse, bands, 1, 1)
	if a != b {
		t.Errorf("permuted input changed stats: %+v vs %+v", a, b)
	}
}

func TestDescribeNaNPropagates(t *testing.T) {
	s := Describe([]float64{1, math.NaN(), 3})
	for i, v := range s.Values() {
		if !math.IsNaN(v) {
			t.Errorf("statistic %d = %v, want NaN", i, v)
		}
	}
}

func TestDescribeOrdering(t *testing.T) {
	s := Describe([]float64{0.3, 2.7, 1.1, 4.2, 3.3, 0.9, 2.2})
	if !(s.Min <= s.Q1 && s.Q1 <= s.Median && s.Median <= s.Q3 && s.Q3 <= s.Max) {
		t.Errorf("quartiles out of order: %+v", s)
	}
	if s.LowerWhisker > s.Q1 || s.UpperWhisker < s.Q3 {
		t.Errorf("whiskers inside the box: %+v", s)
	}
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		data []float64
		p    float64
		want float64
	}{
		{[]float64{7}, 0.25, 7},
		{[]float64{1, 2}, 0.5, 1.5},
		{[]float64{1, 2, 3, 4, 5}, 0.25, 2},
		{[]float64{1, 2, 3, 4, 5}, 1, 5},
		{[]float64{10, 20, 30, 40}, 0.1, 13},
	}
	for _, tt := range tests {
		if got := Quantile(tt.data, tt.p); math.Abs(got-tt.want) > epsilon {
			t.Errorf("Quantile(%v, %v) = %v, want %v", tt.data, tt.p, got, tt.want)
		}
	}
}
