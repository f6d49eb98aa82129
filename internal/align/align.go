// Package align brings source rasters onto the pixel grid of a reference
// raster so that every later stage can compare cells index by index.
package align

import (
	"context"
	"fmt"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"go.uber.org/zap"
)

// Aligner resamples rasters onto a reference grid.
type Aligner struct {
	io     rasterio.RasterIO
	logger *zap.SugaredLogger
}

// New creates an Aligner backed by the given raster store.
func New(io rasterio.RasterIO, logger *zap.SugaredLogger) *Aligner {
	return &Aligner{io: io, logger: logger}
}

// Align resamples every band of src onto ref's grid with nearest-neighbour
// sampling. Each output cell takes the resampled value when it is non-zero
// and keeps ref's value otherwise. The result carries ref's shape, transform
// and CRS, and src's no-data marker.
func (a *Aligner) Align(ref *raster.Grid, src *raster.Raster) (*raster.Raster, error) {
	if ref == nil || src == nil {
		return nil, fmt.Errorf("align: nil raster")
	}
	if len(ref.Data) != ref.Len() {
		return nil, fmt.Errorf("align: reference has %d cells, expected %d: %w",
			len(ref.Data), ref.Len(), rasterio.ErrDimensionMismatch)
	}

	resampled, err := a.io.ResampleNearest(src, ref.Meta)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}

	meta := ref.Meta
	meta.NoData = src.NoData

	out := &raster.Raster{Meta: meta, Bands: make([][]float64, len(resampled))}
	for b, band := range resampled {
		dst := make([]float64, len(ref.Data))
		copy(dst, ref.Data)
		for i, v := range band {
			// NaN != 0, so NaN overrides the reference.
			if v != 0 {
				dst[i] = v
			}
		}
		out.Bands[b] = dst
	}
	return out, nil
}

// AlignFile reads the reference and source rasters, aligns the source and
// writes the result to outPath.
func (a *Aligner) AlignFile(ctx context.Context, refPath, srcPath, outPath string) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref, err := a.io.ReadSingleBand(refPath)
	if err != nil {
		return nil, fmt.Errorf("reading reference %s: %w", refPath, err)
	}
	src, err := a.io.Read(srcPath)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", srcPath, err)
	}

	out, err := a.Align(ref, src)
	if err != nil {
		return nil, fmt.Errorf("aligning %s: %w", srcPath, err)
	}
	if err := a.io.Write(outPath, out); err != nil {
		return nil, fmt.Errorf("writing %s: %w", outPath, err)
	}

	if a.logger != nil {
		a.logger.Debugf("aligned %s onto %s -> %s", srcPath, refPath, outPath)
	}
	return out, nil
}
