package rasterio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/vmihailenco/msgpack/v5"
)

// GridExt is the extension of the native msgpack raster container.
const GridExt = ".grid"

const gridFormatVersion = 1

// gridFile is the on-disk layout of a .grid raster
type gridFile struct {
	Version int         `msgpack:"version"`
	Meta    raster.Meta `msgpack:"meta"`
	Bands   [][]float64 `msgpack:"bands"`
}

// Read loads every band of the raster at path. ENVI rasters (a data file
// with a sibling .hdr, or the .hdr itself) are imported transparently.
func (s *Store) Read(path string) (*raster.Raster, error) {
	if isENVI(path) {
		return s.ImportENVI(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var gf gridFile
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&gf); err != nil {
		return nil, fmt.Errorf("decoding raster %s: %w", path, err)
	}
	if gf.Version != gridFormatVersion {
		return nil, fmt.Errorf("raster %s: unsupported grid format version %d", path, gf.Version)
	}

	r := &raster.Raster{Meta: gf.Meta, Bands: gf.Bands}
	for i, b := range r.Bands {
		if len(b) != r.Len() {
			return nil, fmt.Errorf("raster %s: band %d has %d cells, expected %d: %w",
				path, i+1, len(b), r.Len(), ErrDimensionMismatch)
		}
	}
	return r, nil
}

// Write stores r at path in the native grid format, creating parent
// directories as needed.
func (s *Store) Write(path string, r *raster.Raster) error {
	for i, b := range r.Bands {
		if len(b) != r.Len() {
			return fmt.Errorf("raster %s: band %d has %d cells, expected %d: %w",
				path, i+1, len(b), r.Len(), ErrDimensionMismatch)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(gridFile{Version: gridFormatVersion, Meta: r.Meta, Bands: r.Bands}); err != nil {
		f.Close()
		return fmt.Errorf("encoding raster %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSingleBand writes g using the spatial metadata of ref.
func (s *Store) WriteSingleBand(path string, g *raster.Grid, ref raster.Meta) error {
	if g.Rows != ref.Rows || g.Cols != ref.Cols || len(g.Data) != ref.Len() {
		return fmt.Errorf("writing %s: array is %dx%d (%d cells), reference is %dx%d: %w",
			path, g.Rows, g.Cols, len(g.Data), ref.Rows, ref.Cols, ErrDimensionMismatch)
	}
	return s.Write(path, &raster.Raster{Meta: ref, Bands: [][]float64{g.Data}})
}

func isENVI(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".hdr") {
		return true
	}
	if filepath.Ext(path) != "" {
		return false
	}
	_, err := os.Stat(path + ".hdr")
	return err == nil
}
