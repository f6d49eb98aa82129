package scenario

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/chrissnell/laistats/internal/elevation"
	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/chrissnell/laistats/internal/timeseries"
	"go.uber.org/zap"
)

// Engine applies a ratio table to a series of dated LAI rasters.
type Engine struct {
	io     rasterio.RasterIO
	outDir string
	logger *zap.SugaredLogger
}

// RunResult summarizes an Engine run.
type RunResult struct {
	// Rows is the ratio table with audit counts merged in.
	Rows []Row
	// Adjusted lists the written <stem>_adjusted.grid files.
	Adjusted []string
	// PassThrough lists inputs whose date had no row.
	PassThrough []string
}

// NewEngine creates an Engine writing its outputs into outDir.
func NewEngine(io rasterio.RasterIO, outDir string, logger *zap.SugaredLogger) *Engine {
	return &Engine{io: io, outDir: outDir, logger: logger}
}

// Run adjusts every raster in paths. For each input with a matching date it
// writes <stem>_adjusted.grid and <stem>_unchanged.grid into the output
// directory. Audit counts from all files are merged into a fresh copy of
// rows once every file has been processed.
func (e *Engine) Run(ctx context.Context, paths []string, landuse *raster.Grid, class *elevation.Classification, rows []Row) (*RunResult, error) {
	res := &RunResult{}
	var audits []Audit

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date, err := timeseries.ParseDate(p)
		if err != nil {
			return nil, err
		}
		lai, err := e.io.ReadSingleBand(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}

		adj, err := AdjustRaster(date, lai, landuse, class.Bands, rows, class.Labels)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if !adj.Matched {
			e.logf("%s: no adjustment rows for %s, left untouched", filepath.Base(p), date.Format("2006-01-02"))
			res.PassThrough = append(res.PassThrough, p)
			continue
		}

		stem := timeseries.Stem(p)
		adjPath := filepath.Join(e.outDir, stem+"_adjusted"+rasterio.GridExt)
		unchPath := filepath.Join(e.outDir, stem+"_unchanged"+rasterio.GridExt)

		if err := e.io.WriteSingleBand(adjPath, adj.Adjusted, adj.Adjusted.Meta); err != nil {
			return nil, err
		}
		if err := e.io.WriteSingleBand(unchPath, adj.Unchanged, adj.Unchanged.Meta); err != nil {
			return nil, err
		}

		for _, a := range adj.Audits {
			e.logf("%s %s: %d of %d cells unchanged", filepath.Base(p), a.ElevationClass,
				a.CountUnchangedPixels, a.SumOfPixels)
		}
		audits = append(audits, adj.Audits...)
		res.Adjusted = append(res.Adjusted, adjPath)
	}

	res.Rows = MergeAudits(rows, audits)
	return res, nil
}

func (e *Engine) logf(template string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Infof(template, args...)
	}
}
