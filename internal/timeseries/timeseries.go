// Package timeseries turns a sequence of dated LAI rasters into the flat
// record table.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/zonal"
	"go.uber.org/zap"
)

// ErrDateParse is returned when a file name carries no YYYYDDD date token.
var ErrDateParse = errors.New("cannot parse date from file name")

// ParseDate extracts the acquisition date from a raster file name. The
// stem is split on "_" and its second field must be a year followed by a
// three-digit day of year, e.g. lai_2001045_v2 -> 2001-02-14.
func ParseDate(path string) (time.Time, error) {
	stem := Stem(path)
	fields := strings.Split(stem, "_")
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("%s: no date field: %w", path, ErrDateParse)
	}

	tok := fields[1]
	if len(tok) != 7 {
		return time.Time{}, fmt.Errorf("%s: %q is not YYYYDDD: %w", path, tok, ErrDateParse)
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%s: %q is not YYYYDDD: %w", path, tok, ErrDateParse)
		}
	}

	year, _ := strconv.Atoi(tok[:4])
	doy, _ := strconv.Atoi(tok[4:])
	if doy < 1 || doy > daysIn(year) {
		return time.Time{}, fmt.Errorf("%s: day %d out of range for %d: %w", path, doy, year, ErrDateParse)
	}

	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1), nil
}

// Stem is the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// Extractor computes zonal statistics for every file of a series.
type Extractor struct {
	io     rasterio.RasterIO
	logger *zap.SugaredLogger
}

// NewExtractor creates an Extractor reading rasters through io.
func NewExtractor(io rasterio.RasterIO, logger *zap.SugaredLogger) *Extractor {
	return &Extractor{io: io, logger: logger}
}

// Extract reads each aligned LAI raster in paths and appends one record per
// non-empty (landuse class, elevation band) zone. Records follow file order,
// then ascending class, then ascending band.
func (e *Extractor) Extract(ctx context.Context, paths []string, landuse, bands *raster.Grid, labels []string) (records.Table, error) {
	var out records.Table
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date, err := ParseDate(p)
		if err != nil {
			return nil, err
		}
		lai, err := e.io.ReadSingleBand(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}

		recs, err := ExtractGrid(date, lai, landuse, bands, labels)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if e.logger != nil {
			e.logger.Debugf("%s: %d zone records", filepath.Base(p), len(recs))
		}
		out = append(out, recs...)
	}
	return out, nil
}

// ExtractGrid computes the records of one in-memory LAI grid.
func ExtractGrid(date time.Time, lai, landuse, bands *raster.Grid, labels []string) (records.Table, error) {
	if !lai.SameShape(landuse.Meta) || !lai.SameShape(bands.Meta) {
		return nil, fmt.Errorf("LAI is %dx%d, land use %dx%d, bands %dx%d: %w",
			lai.Rows, lai.Cols, landuse.Rows, landuse.Cols, bands.Rows, bands.Cols, rasterio.ErrDimensionMismatch)
	}

	var out records.Table
	for _, class := range landuse.Unique() {
		if class != math.Trunc(class) {
			continue
		}
		for b := 1; b <= len(labels); b++ {
			st, ok, err := zonal.Compute(lai, landuse, bands, int(class), b)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, records.Record{
				Date:           date,
				Landuse:        int(class),
				ElevationClass: labels[b-1],
				Stats:          st,
			})
		}
	}
	return out, nil
}
