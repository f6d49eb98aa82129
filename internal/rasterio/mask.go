package rasterio

import (
	"fmt"
	"math"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// MaskToPolygon crops the raster at path to the bounding window of the
// polygons in shapefile and blanks every cell whose centre lies outside them.
// Polygons are reprojected into the raster CRS when the shapefile carries a
// .prj; without one they are assumed to share the raster CRS.
func (s *Store) MaskToPolygon(path, shapefile string) (*raster.Raster, error) {
	src, err := s.Read(path)
	if err != nil {
		return nil, err
	}

	polys, err := s.loadPolygons(shapefile, src.CRS)
	if err != nil {
		return nil, err
	}
	return maskRaster(src, polys)
}

func (s *Store) loadPolygons(shapefile, targetCRS string) ([]geom.Polygonal, error) {
	dec, err := shp.NewDecoder(shapefile)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", shapefile, err)
	}
	defer dec.Close()

	var trans func(geom.Geom) (geom.Geom, error)
	if sr, err := dec.SR(); err != nil {
		if s.logger != nil {
			s.logger.Warnf("shapefile %s has no readable projection, assuming raster CRS: %v", shapefile, err)
		}
	} else {
		targetSR, err := parseCRS(targetCRS)
		if err != nil {
			return nil, err
		}
		t, err := sr.NewTransform(targetSR)
		if err != nil {
			return nil, fmt.Errorf("shapefile %s: %v: %w", shapefile, err, ErrSpatialMismatch)
		}
		trans = func(g geom.Geom) (geom.Geom, error) { return g.Transform(t) }
	}

	var polys []geom.Polygonal
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		if trans != nil {
			if g, err = trans(g); err != nil {
				return nil, fmt.Errorf("reprojecting AOI geometry: %w", err)
			}
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("shapefile %s: AOI geometries must be polygons, got %T", shapefile, g)
		}
		polys = append(polys, p)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", shapefile, err)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("shapefile %s contains no polygons", shapefile)
	}
	return polys, nil
}

// maskRaster crops src to the pixel window covering polys and fills cells
// outside every polygon with the raster's no-data value (0 when unset).
func maskRaster(src *raster.Raster, polys []geom.Polygonal) (*raster.Raster, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pg := range polys {
		for _, poly := range pg.Polygons() {
			for _, path := range poly {
				for _, pt := range path {
					minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
					minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
				}
			}
		}
	}
	if math.IsInf(minX, 1) {
		return nil, fmt.Errorf("AOI polygons are empty")
	}

	c0, r0, c1, r1 := math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}} {
		c, r, ok := src.Transform.ToPixel(corner[0], corner[1])
		if !ok {
			return nil, fmt.Errorf("raster transform is not invertible: %w", ErrSpatialMismatch)
		}
		c0, c1 = math.Min(c0, c), math.Max(c1, c)
		r0, r1 = math.Min(r0, r), math.Max(r1, r)
	}

	col0 := clamp(int(math.Floor(c0)), 0, src.Cols)
	row0 := clamp(int(math.Floor(r0)), 0, src.Rows)
	col1 := clamp(int(math.Ceil(c1)), 0, src.Cols)
	row1 := clamp(int(math.Ceil(r1)), 0, src.Rows)
	if col1 <= col0 || row1 <= row0 {
		return nil, fmt.Errorf("AOI does not overlap the raster: %w", ErrSpatialMismatch)
	}

	fill := 0.0
	if src.NoData != nil {
		fill = *src.NoData
	}

	meta := src.Meta
	meta.Rows = row1 - row0
	meta.Cols = col1 - col0
	meta.Transform = src.Transform.Shift(col0, row0)

	out := &raster.Raster{Meta: meta, Bands: make([][]float64, src.Count())}
	for b := range out.Bands {
		out.Bands[b] = make([]float64, meta.Len())
	}

	for r := 0; r < meta.Rows; r++ {
		for c := 0; c < meta.Cols; c++ {
			x, y := meta.Transform.Apply(float64(c)+0.5, float64(r)+0.5)
			inside := pointInAny(geom.Point{X: x, Y: y}, polys)
			si := (r+row0)*src.Cols + (c + col0)
			di := r*meta.Cols + c
			for b := range out.Bands {
				if inside {
					out.Bands[b][di] = src.Bands[b][si]
				} else {
					out.Bands[b][di] = fill
				}
			}
		}
	}
	return out, nil
}

func pointInAny(p geom.Point, polys []geom.Polygonal) bool {
	for _, pg := range polys {
		if p.Within(pg) != geom.Outside {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
