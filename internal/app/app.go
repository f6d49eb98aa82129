// Package app wires the aggregation stages into the laistats pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chrissnell/laistats/internal/align"
	"github.com/chrissnell/laistats/internal/elevation"
	"github.com/chrissnell/laistats/internal/raster"
	"github.com/chrissnell/laistats/internal/rasterio"
	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/timeseries"
	"github.com/chrissnell/laistats/internal/views"
	"github.com/chrissnell/laistats/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Output file names inside the results directory
const (
	DailyLAIFile           = "daily_lai.csv"
	CharacteristicYearFile = "mean_characteristic_year.csv"
	ClustersDir            = "clusters"
	MergedClustersFile     = "clusters_merged.csv"
	AdjustmentTableFile    = "adjustment_table.csv"
)

// App represents the main application
type App struct {
	cfg     *config.ConfigData
	store   *rasterio.Store
	aligner *align.Aligner
	logger  *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	store := rasterio.NewStore(logger)
	return &App{
		cfg:     cfg,
		store:   store,
		aligner: align.New(store, logger),
		logger:  logger,
	}
}

// Prepared holds the unified inputs every later stage works on.
type Prepared struct {
	Landuse        *raster.Grid
	Classification *elevation.Classification
	// LAIPaths are the aligned LAI rasters in date order.
	LAIPaths []string
}

// Summary reports what a full run produced.
type Summary struct {
	Run     storage.Run
	Records records.Table
	// Scenario is nil when no scenario is configured.
	Scenario *scenario.RunResult
	Outputs  []string
}

// stage runs fn and logs how long it took.
func (a *App) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		a.logger.Errorw("stage failed", "stage", name, "elapsed", time.Since(start), "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	a.logger.Infow("stage complete", "stage", name, "elapsed", time.Since(start))
	return nil
}

func (a *App) workPath(parts ...string) string {
	return filepath.Join(append([]string{a.cfg.Output.WorkDir}, parts...)...)
}

func (a *App) resultsPath(parts ...string) string {
	return filepath.Join(append([]string{a.cfg.Output.ResultsDir}, parts...)...)
}

// Prepare imports the raw LAI rasters, builds the template from the land
// use raster and aligns land use, DEM and LAI onto it.
func (a *App) Prepare(ctx context.Context) (*Prepared, error) {
	p := &Prepared{}
	var raw []string

	err := a.stage("discover", func() error {
		var err error
		raw, err = DiscoverLAI(a.cfg.Input.LAIDir)
		if err == nil && len(raw) == 0 {
			err = fmt.Errorf("no LAI rasters in %s", a.cfg.Input.LAIDir)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var imported []string
	err = a.stage("import", func() error {
		var err error
		imported, err = a.importLAI(ctx, raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	templatePath := a.workPath("template" + rasterio.GridExt)
	err = a.stage("template", func() error {
		base := a.cfg.Input.Landuse
		if shp := a.cfg.Input.AOIShapefile; shp != "" {
			masked, err := a.store.MaskToPolygon(base, shp)
			if err != nil {
				return fmt.Errorf("masking %s to %s: %w", base, shp, err)
			}
			base = a.workPath("landuse_masked" + rasterio.GridExt)
			if err := a.store.Write(base, masked); err != nil {
				return err
			}
		}
		if _, err := a.store.CreateTemplate(base, templatePath); err != nil {
			return err
		}

		lu, err := a.aligner.AlignFile(ctx, templatePath, base, a.workPath("landuse_aligned"+rasterio.GridExt))
		if err != nil {
			return err
		}
		band, err := lu.Band(0)
		if err != nil {
			return err
		}
		p.Landuse = band.MapValues(func(v float64) float64 {
			if band.IsNoData(v) {
				return math.NaN()
			}
			return v
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.stage("classify elevation", func() error {
		dem, err := a.aligner.AlignFile(ctx, templatePath, a.cfg.Input.DEM, a.workPath("dem_aligned"+rasterio.GridExt))
		if err != nil {
			return err
		}
		band, err := dem.Band(0)
		if err != nil {
			return err
		}
		p.Classification, err = elevation.Classify(band, a.cfg.Processing.ElevationBins)
		if err != nil {
			return err
		}
		a.logger.Infow("elevation bands", "thresholds", p.Classification.Thresholds, "labels", p.Classification.Labels)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.stage("align", func() error {
		for _, src := range imported {
			out := a.workPath("aligned", timeseries.Stem(src)+"_aligned"+rasterio.GridExt)
			if _, err := a.aligner.AlignFile(ctx, templatePath, src, out); err != nil {
				if err := a.skip(err, src); err != nil {
					return err
				}
				continue
			}
			p.LAIPaths = append(p.LAIPaths, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// skip decides whether a per-file error aborts the run.
func (a *App) skip(err error, path string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !a.cfg.Processing.ContinueOnError {
		return err
	}
	a.logger.Warnw("skipping file", "file", path, "error", err)
	return nil
}

// DiscoverLAI lists the raw LAI rasters in dir: extension-less ENVI data
// files with a .hdr sibling, and native .grid files. The result is sorted.
func DiscoverLAI(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		switch filepath.Ext(name) {
		case "":
			if _, err := os.Stat(path + ".hdr"); err == nil {
				out = append(out, path)
			}
		case rasterio.GridExt:
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// importLAI converts ENVI rasters to .grid files in the work directory,
// with negative values (fill codes) set to NaN. Native rasters are used
// in place.
func (a *App) importLAI(ctx context.Context, paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(p), rasterio.GridExt) {
			out = append(out, p)
			continue
		}

		r, err := a.store.ImportENVI(p)
		if err != nil {
			if err := a.skip(err, p); err != nil {
				return nil, err
			}
			continue
		}
		for _, band := range r.Bands {
			for i, v := range band {
				if v < 0 {
					band[i] = math.NaN()
				}
			}
		}
		r.Meta = r.Meta.WithNoData(math.NaN())

		dst := a.workPath("raw", filepath.Base(p)+rasterio.GridExt)
		if err := a.store.Write(dst, r); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

// Aggregate extracts the record table from the prepared rasters and keeps
// the configured land use classes.
func (a *App) Aggregate(ctx context.Context, p *Prepared) (records.Table, error) {
	var tbl records.Table
	err := a.stage("zonal statistics", func() error {
		ex := timeseries.NewExtractor(a.store, a.logger)
		for _, path := range p.LAIPaths {
			recs, err := ex.Extract(ctx, []string{path}, p.Landuse, p.Classification.Bands, p.Classification.Labels)
			if err != nil {
				if err := a.skip(err, path); err != nil {
					return err
				}
				continue
			}
			tbl = append(tbl, recs...)
		}
		tbl = tbl.FilterLanduse(a.cfg.Processing.LanduseClasses)
		a.logger.Infow("records extracted", "files", len(p.LAIPaths), "records", len(tbl))
		return nil
	})
	return tbl, err
}

// ExportRecords writes the full record table.
func (a *App) ExportRecords(tbl records.Table) (string, error) {
	path := a.resultsPath(DailyLAIFile)
	return path, a.stage("export records", func() error {
		return records.WriteCSVFile(path, tbl)
	})
}

// ExportCharacteristicYear writes the multi-year mean per month-day.
func (a *App) ExportCharacteristicYear(tbl records.Table) (string, error) {
	path := a.resultsPath(CharacteristicYearFile)
	return path, a.stage("export characteristic year", func() error {
		return views.WriteCharacteristicCSVFile(path, views.CharacteristicYear(tbl))
	})
}

// ExportClusters writes one CSV per (year, landuse, elevation class).
func (a *App) ExportClusters(tbl records.Table) ([]string, error) {
	var paths []string
	err := a.stage("export clusters", func() error {
		var err error
		paths, err = views.WriteClusters(a.resultsPath(ClustersDir), views.SplitClusters(tbl))
		return err
	})
	return paths, err
}

// MergeClusterDir reads the cluster CSVs back into one record table and
// writes it next to them.
func (a *App) MergeClusterDir(dir string) (string, records.Table, error) {
	clusters, err := views.ReadClusterDir(dir)
	if err != nil {
		return "", nil, err
	}
	tbl := views.MergeClusters(clusters)
	path := a.resultsPath(MergedClustersFile)
	if err := records.WriteCSVFile(path, tbl); err != nil {
		return "", nil, err
	}
	return path, tbl, nil
}

// LoadRecords reads a previously exported record table.
func (a *App) LoadRecords(path string) (records.Table, error) {
	if path == "" {
		path = a.resultsPath(DailyLAIFile)
	}
	return records.ReadCSVFile(path)
}

// Adjust applies the configured land use scenario to the prepared LAI
// rasters and writes the audited adjustment table.
func (a *App) Adjust(ctx context.Context, p *Prepared, tbl records.Table) (*scenario.RunResult, error) {
	sc := a.cfg.Scenario
	if sc == nil {
		return nil, errors.New("no scenario configured")
	}

	var res *scenario.RunResult
	err := a.stage("scenario", func() error {
		rows, err := scenario.BuildRatioTable(tbl, sc.CurrentClass, sc.TargetClass)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			a.logger.Warnw("no dates with both classes; nothing to adjust",
				"current", sc.CurrentClass, "target", sc.TargetClass)
		}

		res, err = scenario.NewEngine(a.store, sc.OutputDir, a.logger).Run(ctx, p.LAIPaths, p.Landuse, p.Classification, rows)
		if err != nil {
			return err
		}
		return scenario.WriteCSVFile(filepath.Join(sc.OutputDir, AdjustmentTableFile), res.Rows)
	})
	return res, err
}

// Run executes the whole pipeline: prepare, aggregate, export, the
// optional scenario and the configured record sinks.
func (a *App) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	defer a.Cleanup()

	p, err := a.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	tbl, err := a.Aggregate(ctx, p)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Records: tbl}
	path, err := a.ExportRecords(tbl)
	if err != nil {
		return nil, err
	}
	sum.Outputs = append(sum.Outputs, path)

	if path, err = a.ExportCharacteristicYear(tbl); err != nil {
		return nil, err
	}
	sum.Outputs = append(sum.Outputs, path)

	clusters, err := a.ExportClusters(tbl)
	if err != nil {
		return nil, err
	}
	sum.Outputs = append(sum.Outputs, clusters...)

	var rows []scenario.Row
	if a.cfg.Scenario != nil {
		if sum.Scenario, err = a.Adjust(ctx, p, tbl); err != nil {
			return nil, err
		}
		rows = sum.Scenario.Rows
		sum.Outputs = append(sum.Outputs, sum.Scenario.Adjusted...)
		sum.Outputs = append(sum.Outputs, filepath.Join(a.cfg.Scenario.OutputDir, AdjustmentTableFile))
	}

	sum.Run = storage.Run{
		ID:         uuid.NewString(),
		StartedAt:  started.UTC(),
		LAIFiles:   len(p.LAIPaths),
		Thresholds: p.Classification.Thresholds,
		Labels:     p.Classification.Labels,
	}
	if sc := a.cfg.Scenario; sc != nil {
		sum.Run.CurrentClass = sc.CurrentClass
		sum.Run.TargetClass = sc.TargetClass
	}

	err = a.stage("store", func() error {
		return a.persist(ctx, sum.Run, tbl, rows)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Infow("run complete", "run", sum.Run.ID, "records", len(tbl), "elapsed", time.Since(started))
	return sum, nil
}

func (a *App) persist(ctx context.Context, run storage.Run, tbl records.Table, rows []scenario.Row) error {
	sinks, err := OpenSinks(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return nil
	}
	defer sinks.Close()
	return sinks.StoreRun(ctx, run, tbl, rows)
}

// Cleanup removes the work directory unless configured to keep it.
func (a *App) Cleanup() {
	if a.cfg.Output.KeepWorkDir {
		return
	}
	if err := os.RemoveAll(a.cfg.Output.WorkDir); err != nil {
		a.logger.Warnw("could not remove work directory", "dir", a.cfg.Output.WorkDir, "error", err)
		return
	}
	a.logger.Debugf("removed work directory %s", a.cfg.Output.WorkDir)
}
