package rasterio

import (
	"fmt"
	"math"
	"strings"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/ctessum/geom/proj"
)

// parseCRS parses a proj4 or WKT spatial reference.
func parseCRS(def string) (*proj.SR, error) {
	if strings.TrimSpace(def) == "" {
		return nil, fmt.Errorf("empty CRS definition: %w", ErrSpatialMismatch)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parsing CRS %q: %v: %w", def, err, ErrSpatialMismatch)
	}
	return sr, nil
}

// transformBetween returns a transformer from one CRS to another, or nil
// when both definitions are identical.
func transformBetween(from, to string) (proj.Transformer, error) {
	fromSR, err := parseCRS(from)
	if err != nil {
		return nil, err
	}
	toSR, err := parseCRS(to)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(from) == strings.TrimSpace(to) {
		return nil, nil
	}
	t, err := fromSR.NewTransform(toSR)
	if err != nil {
		return nil, fmt.Errorf("building CRS transform: %v: %w", err, ErrSpatialMismatch)
	}
	return t, nil
}

// ResampleNearest reprojects every band of src onto the grid described by
// dst using nearest-neighbour sampling of destination cell centres.
// Cells that fall outside src, fail to project or hit src no-data take the
// fill value: NaN when src marks NaN as no-data, 0 otherwise.
func (s *Store) ResampleNearest(src *raster.Raster, dst raster.Meta) ([][]float64, error) {
	// Destination cell centres are projected back into the source CRS.
	toSrc, err := transformBetween(dst.CRS, src.CRS)
	if err != nil {
		return nil, err
	}
	if _, _, ok := src.Transform.ToPixel(0, 0); !ok {
		return nil, fmt.Errorf("source transform %v is not invertible: %w", src.Transform, ErrSpatialMismatch)
	}

	fill := resampleFill(src.Meta)
	out := make([][]float64, src.Count())
	for b := range out {
		out[b] = make([]float64, dst.Len())
		if fill != 0 {
			for i := range out[b] {
				out[b][i] = fill
			}
		}
	}

	// Identical grids need no sampling.
	if toSrc == nil && src.Meta.SameShape(dst) && src.Transform == dst.Transform {
		for b, band := range src.Bands {
			for i, v := range band {
				if !src.IsNoData(v) {
					out[b][i] = v
				} else {
					out[b][i] = fill
				}
			}
		}
		return out, nil
	}

	var skipped int
	for r := 0; r < dst.Rows; r++ {
		for c := 0; c < dst.Cols; c++ {
			x, y := dst.Transform.Apply(float64(c)+0.5, float64(r)+0.5)
			if toSrc != nil {
				x, y, err = toSrc(x, y)
				if err != nil {
					skipped++
					continue
				}
			}

			sc, sr, _ := src.Transform.ToPixel(x, y)
			ci := int(math.Floor(sc))
			ri := int(math.Floor(sr))
			if ci < 0 || ri < 0 || ci >= src.Cols || ri >= src.Rows {
				continue
			}

			si := ri*src.Cols + ci
			di := r*dst.Cols + c
			for b, band := range src.Bands {
				if v := band[si]; !src.IsNoData(v) {
					out[b][di] = v
				}
			}
		}
	}

	if skipped > 0 && s.logger != nil {
		s.logger.Debugf("resample: %d destination cells could not be projected into the source CRS", skipped)
	}

	return out, nil
}

// resampleFill is the value written where no valid source sample exists.
func resampleFill(m raster.Meta) float64 {
	if m.NoData != nil && math.IsNaN(*m.NoData) {
		return math.NaN()
	}
	return 0
}
