// Package elevation bins a DEM into discrete elevation bands.
package elevation

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/chrissnell/laistats/internal/raster"
)

// ErrInvalidThresholds is returned for an empty or non-increasing threshold list.
var ErrInvalidThresholds = errors.New("invalid elevation thresholds")

// Classification assigns every DEM cell a 1-based band index.
type Classification struct {
	Bands      *raster.Grid
	Labels     []string
	Thresholds []int
}

// BandCount is the number of bands, len(Thresholds)+1.
func (c *Classification) BandCount() int {
	return len(c.Labels)
}

// Label returns the label of a 1-based band index.
func (c *Classification) Label(band int) (string, bool) {
	if band < 1 || band > len(c.Labels) {
		return "", false
	}
	return c.Labels[band-1], true
}

// BandOf returns the 1-based band index of a label.
func (c *Classification) BandOf(label string) (int, bool) {
	for i, l := range c.Labels {
		if l == label {
			return i + 1, true
		}
	}
	return 0, false
}

// Classify bins dem by thresholds. A nil thresholds slice selects
// AutoThresholds. A cell v lands in band 1 + |{t : t < v}|, so values equal
// to a threshold belong to the lower band and NaN cells to the top band.
func Classify(dem *raster.Grid, thresholds []int) (*Classification, error) {
	if thresholds == nil {
		thresholds = AutoThresholds(dem)
	}
	if err := validate(thresholds); err != nil {
		return nil, err
	}

	bands := raster.NewGrid(dem.Meta.WithoutNoData())
	for i, v := range dem.Data {
		bands.Data[i] = float64(bandIndex(v, thresholds))
	}

	ts := make([]int, len(thresholds))
	copy(ts, thresholds)

	return &Classification{
		Bands:      bands,
		Labels:     Labels(ts),
		Thresholds: ts,
	}, nil
}

func bandIndex(v float64, thresholds []int) int {
	if math.IsNaN(v) {
		return len(thresholds) + 1
	}
	n := 1
	for _, t := range thresholds {
		if float64(t) < v {
			n++
		}
	}
	return n
}

func validate(thresholds []int) error {
	if len(thresholds) == 0 {
		return fmt.Errorf("no thresholds given: %w", ErrInvalidThresholds)
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return fmt.Errorf("threshold %d follows %d: %w", thresholds[i], thresholds[i-1], ErrInvalidThresholds)
		}
	}
	return nil
}

// AutoThresholds spans the DEM in 100 m steps, from its minimum rounded up
// to its maximum rounded down. NaN and no-data cells are ignored. When the
// rounded range is empty the rounded-up minimum is the only threshold.
func AutoThresholds(dem *raster.Grid) []int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range dem.Data {
		if math.IsNaN(v) || dem.IsNoData(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return []int{0}
	}

	start := int(math.Ceil(lo/100)) * 100
	end := int(math.Floor(hi/100)) * 100
	if end < start {
		return []int{start}
	}

	var out []int
	for t := start; t <= end; t += 100 {
		out = append(out, t)
	}
	return out
}

// Labels names the bands delimited by thresholds:
// less_than_{t0}, {t0}-{t1}, ..., greater_than_{tN}.
func Labels(thresholds []int) []string {
	if len(thresholds) == 0 {
		return nil
	}
	labels := make([]string, 0, len(thresholds)+1)
	labels = append(labels, "less_than_"+strconv.Itoa(thresholds[0]))
	for i := 1; i < len(thresholds); i++ {
		labels = append(labels, fmt.Sprintf("%d-%d", thresholds[i-1], thresholds[i]))
	}
	labels = append(labels, "greater_than_"+strconv.Itoa(thresholds[len(thresholds)-1]))
	return labels
}
