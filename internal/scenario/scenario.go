// Package scenario projects LAI on cells of one land-use class as if they
// were converted to another, accepting a projected value only inside the
// target class's interquartile range.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/chrissnell/laistats/internal/records"
)

// ErrDuplicateKey is returned when one class has more than one record for
// the same (date, elevation class), as happens with two rasters of one day.
var ErrDuplicateKey = errors.New("duplicate (date, elevation class) record")

// Row is one (date, elevation class) entry of the adjustment table.
// SumOfPixels and CountUnchangedPixels stay nil until an adjustment pass
// reports counts for the row.
type Row struct {
	Date                 time.Time `json:"date" msgpack:"date"`
	ElevationClass       string    `json:"elevation_class" msgpack:"elevation_class"`
	LanduseTarget        int       `json:"landuse_target" msgpack:"landuse_target"`
	LanduseCurrent       int       `json:"landuse_current" msgpack:"landuse_current"`
	MedianTarget         float64   `json:"median_target" msgpack:"median_target"`
	MedianCurrent        float64   `json:"median_current" msgpack:"median_current"`
	Q1Target             float64   `json:"q1_target" msgpack:"q1_target"`
	Q3Target             float64   `json:"q3_target" msgpack:"q3_target"`
	Diff                 float64   `json:"diff" msgpack:"diff"`
	SumOfPixels          *int      `json:"sum_of_pixels,omitempty" msgpack:"sum_of_pixels,omitempty"`
	CountUnchangedPixels *int      `json:"count_unchanged_pixels,omitempty" msgpack:"count_unchanged_pixels,omitempty"`
}

// Audit reports how many cells one row matched on one raster and how many
// of those failed the acceptance test.
type Audit struct {
	Date                 time.Time
	ElevationClass       string
	SumOfPixels          int
	CountUnchangedPixels int
}

// Result is the outcome of adjusting a single raster.
type Result struct {
	Adjusted  *raster.Grid
	Unchanged *raster.Grid
	Audits    []Audit
	// Matched is false when no row carried the raster's date.
	Matched bool
}

type joinKey struct {
	date time.Time
	elev string
}

// BuildRatioTable joins the records of the current and target classes on
// (date, elevation class) and computes Diff = MedianTarget / MedianCurrent.
// Pairs missing on either side are dropped. Rows follow the target class's
// record order. A zero current median yields an infinite or NaN Diff, which
// is logged and kept. Either class holding two records for one key is
// ErrDuplicateKey.
func BuildRatioTable(tbl records.Table, current, target int) ([]Row, error) {
	cur := make(map[joinKey]records.Record)
	seen := make(map[joinKey]bool)
	for _, r := range tbl {
		k := joinKey{r.Date.UTC(), r.ElevationClass}
		switch r.Landuse {
		case current:
			if _, dup := cur[k]; dup {
				return nil, duplicateKey(r, current)
			}
			cur[k] = r
		case target:
			if seen[k] {
				return nil, duplicateKey(r, target)
			}
			seen[k] = true
		}
	}

	var rows []Row
	for _, t := range tbl {
		if t.Landuse != target {
			continue
		}
		c, ok := cur[joinKey{t.Date.UTC(), t.ElevationClass}]
		if !ok {
			continue
		}

		diff := t.Median / c.Median
		if math.IsInf(diff, 0) || math.IsNaN(diff) {
			log.Warnw("non-finite adjustment ratio",
				"date", t.Date.Format(records.DateLayout),
				"elevation_class", t.ElevationClass,
				"median_target", t.Median,
				"median_current", c.Median)
		}

		rows = append(rows, Row{
			Date:           t.Date,
			ElevationClass: t.ElevationClass,
			LanduseTarget:  target,
			LanduseCurrent: current,
			MedianTarget:   t.Median,
			MedianCurrent:  c.Median,
			Q1Target:       t.Q1,
			Q3Target:       t.Q3,
			Diff:           diff,
		})
	}
	return rows, nil
}

func duplicateKey(r records.Record, class int) error {
	return fmt.Errorf("landuse %d on %s in %s: %w",
		class, r.Date.Format(records.DateLayout), r.ElevationClass, ErrDuplicateKey)
}

// AdjustRaster applies every row dated date to the LAI grid. For matched
// cells (landuse == row.LanduseCurrent and band == row's band) the value
// old*Diff is accepted when it lies in [Q1Target, Q3Target]; otherwise the
// cell keeps old in Adjusted and old is copied into Unchanged. All other
// Unchanged cells are NaN. Inputs are never modified.
func AdjustRaster(date time.Time, lai, landuse, bands *raster.Grid, rows []Row, labels []string) (Result, error) {
	if !lai.SameShape(landuse.Meta) || !lai.SameShape(bands.Meta) ||
		len(lai.Data) != len(landuse.Data) || len(lai.Data) != len(bands.Data) {
		return Result{}, fmt.Errorf("adjusting %s: LAI %dx%d, land use %dx%d, bands %dx%d: %w",
			date.Format(records.DateLayout), lai.Rows, lai.Cols, landuse.Rows, landuse.Cols,
			bands.Rows, bands.Cols, rasterio.ErrDimensionMismatch)
	}

	res := Result{
		Adjusted:  lai.Clone(),
		Unchanged: raster.NewFilledGrid(lai.Meta.WithNoData(math.NaN()), math.NaN()),
	}

	bandOf := make(map[string]int, len(labels))
	for i, l := range labels {
		bandOf[l] = i + 1
	}

	for _, row := range rows {
		if !sameDay(row.Date, date) {
			continue
		}
		res.Matched = true

		band, ok := bandOf[row.ElevationClass]
		if !ok {
			return Result{}, fmt.Errorf("adjustment row %s references unknown elevation class %q",
				row.Date.Format(records.DateLayout), row.ElevationClass)
		}

		audit := Audit{Date: row.Date, ElevationClass: row.ElevationClass}
		lu, b := float64(row.LanduseCurrent), float64(band)
		for i, old := range lai.Data {
			if landuse.Data[i] != lu || bands.Data[i] != b {
				continue
			}
			audit.SumOfPixels++

			proj := old * row.Diff
			if proj >= row.Q1Target && proj <= row.Q3Target {
				res.Adjusted.Data[i] = proj
				continue
			}
			res.Unchanged.Data[i] = old
			audit.CountUnchangedPixels++
		}
		res.Audits = append(res.Audits, audit)
	}
	return res, nil
}

// MergeAudits returns a copy of rows with audit counts filled in. Counts for
// the same (date, elevation class) are summed across audits. rows is not
// modified.
func MergeAudits(rows []Row, audits []Audit) []Row {
	type counts struct{ sum, unchanged int }
	byKey := make(map[joinKey]*counts)
	for _, a := range audits {
		k := joinKey{a.Date.UTC(), a.ElevationClass}
		c, ok := byKey[k]
		if !ok {
			c = &counts{}
			byKey[k] = c
		}
		c.sum += a.SumOfPixels
		c.unchanged += a.CountUnchangedPixels
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r
		out[i].SumOfPixels = copyInt(r.SumOfPixels)
		out[i].CountUnchangedPixels = copyInt(r.CountUnchangedPixels)

		c, ok := byKey[joinKey{r.Date.UTC(), r.ElevationClass}]
		if !ok {
			continue
		}
		sum, unchanged := c.sum, c.unchanged
		if out[i].SumOfPixels != nil {
			sum += *out[i].SumOfPixels
		}
		if out[i].CountUnchangedPixels != nil {
			unchanged += *out[i].CountUnchangedPixels
		}
		out[i].SumOfPixels = &sum
		out[i].CountUnchangedPixels = &unchanged
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
