// Package raster holds the in-memory grid types shared by every stage of the
// LAI pipeline.
package raster

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// GeoTransform is a GDAL-ordered affine transform:
// originX, pixelWidth, rowRotation, originY, columnRotation, pixelHeight.
type GeoTransform [6]float64

// Apply maps a (fractional) pixel position to map coordinates.
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	x = t[0] + col*t[1] + row*t[2]
	y = t[3] + col*t[4] + row*t[5]
	return x, y
}

// ToPixel maps map coordinates back to a fractional pixel position.
// It returns false when the transform is not invertible.
func (t GeoTransform) ToPixel(x, y float64) (col, row float64, ok bool) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, false
	}
	dx := x - t[0]
	dy := y - t[3]
	col = (t[5]*dx - t[2]*dy) / det
	row = (-t[4]*dx + t[1]*dy) / det
	return col, row, true
}

// Shift returns the transform of a window whose top-left pixel is (col, row).
func (t GeoTransform) Shift(col, row int) GeoTransform {
	out := t
	out[0], out[3] = t.Apply(float64(col), float64(row))
	return out
}

// Meta is the spatial reference of a grid.
type Meta struct {
	Rows      int          `msgpack:"rows" json:"rows"`
	Cols      int          `msgpack:"cols" json:"cols"`
	Transform GeoTransform `msgpack:"transform" json:"transform"`
	CRS       string       `msgpack:"crs" json:"crs"`
	NoData    *float64     `msgpack:"nodata,omitempty" json:"nodata,omitempty"`
}

// Len is the number of cells in one band.
func (m Meta) Len() int {
	return m.Rows * m.Cols
}

// SameShape reports whether both grids have the same dimensions.
func (m Meta) SameShape(o Meta) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// SameGrid reports whether both grids share shape, transform and CRS.
func (m Meta) SameGrid(o Meta) bool {
	return m.SameShape(o) &&
		m.Transform == o.Transform &&
		strings.TrimSpace(m.CRS) == strings.TrimSpace(o.CRS)
}

// WithNoData returns a copy of m with the given no-data marker.
func (m Meta) WithNoData(v float64) Meta {
	m.NoData = &v
	return m
}

// WithoutNoData returns a copy of m with no no-data marker.
func (m Meta) WithoutNoData() Meta {
	m.NoData = nil
	return m
}

// IsNoData reports whether v is the grid's no-data marker.
func (m Meta) IsNoData(v float64) bool {
	if m.NoData == nil {
		return false
	}
	if math.IsNaN(*m.NoData) {
		return math.IsNaN(v)
	}
	return v == *m.NoData
}

// Grid is a single band of cells in row-major order.
type Grid struct {
	Meta
	Data []float64
}

// NewGrid returns a zero-filled grid.
func NewGrid(meta Meta) *Grid {
	return &Grid{Meta: meta, Data: make([]float64, meta.Len())}
}

// NewFilledGrid returns a grid where every cell holds v.
func NewFilledGrid(meta Meta, v float64) *Grid {
	g := NewGrid(meta)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// FromData wraps data in a grid after checking its length.
func FromData(meta Meta, data []float64) (*Grid, error) {
	if len(data) != meta.Len() {
		return nil, fmt.Errorf("grid data has %d cells, expected %dx%d", len(data), meta.Rows, meta.Cols)
	}
	return &Grid{Meta: meta, Data: data}, nil
}

// At returns the value at row r, column c.
func (g *Grid) At(r, c int) float64 {
	return g.Data[r*g.Cols+c]
}

// Set writes v at row r, column c.
func (g *Grid) Set(r, c int, v float64) {
	g.Data[r*g.Cols+c] = v
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{Meta: g.Meta, Data: data}
}

// MapValues returns a copy of g with fn applied to every cell.
func (g *Grid) MapValues(fn func(float64) float64) *Grid {
	out := g.Clone()
	for i, v := range out.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Unique returns the distinct non-NaN values in ascending order.
func (g *Grid) Unique() []float64 {
	seen := make(map[float64]struct{})
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		seen[v] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Raster is a multi-band grid as it is stored on disk.
type Raster struct {
	Meta
	Bands [][]float64
}

// Band returns band i as a Grid sharing the raster's storage.
func (r *Raster) Band(i int) (*Grid, error) {
	if i < 0 || i >= len(r.Bands) {
		return nil, fmt.Errorf("band %d out of range, raster has %d bands", i+1, len(r.Bands))
	}
	return &Grid{Meta: r.Meta, Data: r.Bands[i]}, nil
}

// Count is the number of bands.
func (r *Raster) Count() int {
	return len(r.Bands)
}

// SingleBand wraps a grid as a one-band raster.
func SingleBand(g *Grid) *Raster {
	return &Raster{Meta: g.Meta, Bands: [][]float64{g.Data}}
}
