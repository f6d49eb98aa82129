// Package records defines the flat LAI statistics table produced by the
// aggregation stage and its CSV representation.
package records

import (
	"sort"
	"time"

	"github.com/chrissnell/laistats/internal/zonal"
)

// DateLayout is the calendar date format used in every export.
const DateLayout = "2006-01-02"

// Record is one zone's statistics on one date.
type Record struct {
	Date           time.Time `json:"date" msgpack:"date"`
	Landuse        int       `json:"landuse" msgpack:"landuse"`
	ElevationClass string    `json:"elevation_class" msgpack:"elevation_class"`
	zonal.Stats
}

// Table is an ordered record set.
type Table []Record

// FilterLanduse keeps records whose class is in classes. A nil classes
// slice keeps every class except 0, which marks cells outside the land-use
// map.
func (t Table) FilterLanduse(classes []int) Table {
	keep := make(map[int]bool, len(classes))
	for _, c := range classes {
		keep[c] = true
	}

	out := make(Table, 0, len(t))
	for _, r := range t {
		if classes == nil {
			if r.Landuse != 0 {
				out = append(out, r)
			}
			continue
		}
		if keep[r.Landuse] {
			out = append(out, r)
		}
	}
	return out
}

// ForLanduse returns the records of a single class.
func (t Table) ForLanduse(class int) Table {
	return t.FilterLanduse([]int{class})
}

// Landuses returns the distinct classes in ascending order.
func (t Table) Landuses() []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range t {
		if !seen[r.Landuse] {
			seen[r.Landuse] = true
			out = append(out, r.Landuse)
		}
	}
	sort.Ints(out)
	return out
}

// Dates returns the distinct dates in ascending order.
func (t Table) Dates() []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, r := range t {
		d := r.Date.UTC()
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
