// Package rasterio reads and writes rasters and performs the geospatial
// plumbing (nearest-neighbour reprojection, polygon masking, ENVI import)
// that the aggregation stages depend on.
package rasterio

import (
	"errors"

	"github.com/chrissnell/laistats/internal/raster"
	"go.uber.org/zap"
)

var (
	// ErrSpatialMismatch is returned when CRS metadata is missing or cannot be parsed.
	ErrSpatialMismatch = errors.New("spatial reference mismatch")

	// ErrDimensionMismatch is returned when an array does not match its reference grid shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// RasterIO is the raster collaborator used by the pipeline stages.
type RasterIO interface {
	Read(path string) (*raster.Raster, error)
	Write(path string, r *raster.Raster) error
	ReadSingleBand(path string) (*raster.Grid, error)
	WriteSingleBand(path string, g *raster.Grid, ref raster.Meta) error
	ResampleNearest(src *raster.Raster, dst raster.Meta) ([][]float64, error)
	MaskToPolygon(path, shapefile string) (*raster.Raster, error)
}

// Store is the file-backed RasterIO implementation.
type Store struct {
	logger *zap.SugaredLogger
}

// NewStore creates a new raster store
func NewStore(logger *zap.SugaredLogger) *Store {
	return &Store{logger: logger}
}

// ReadSingleBand reads the first band of the raster at path.
func (s *Store) ReadSingleBand(path string) (*raster.Grid, error) {
	r, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	return r.Band(0)
}

// CreateTemplate writes a zero-filled single-band raster sharing the
// spatial metadata of the raster at basePath.
func (s *Store) CreateTemplate(basePath, outPath string) (*raster.Grid, error) {
	base, err := s.Read(basePath)
	if err != nil {
		return nil, err
	}
	tmpl := raster.NewGrid(base.Meta.WithoutNoData())
	if err := s.Write(outPath, raster.SingleBand(tmpl)); err != nil {
		return nil, err
	}
	return tmpl, nil
}
