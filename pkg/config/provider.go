// Package config loads and validates laistats run configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
}

// ConfigData is the complete run configuration
type ConfigData struct {
	Input      InputData       `yaml:"input" json:"input"`
	Processing ProcessingData  `yaml:"processing" json:"processing"`
	Output     OutputData      `yaml:"output" json:"output"`
	Scenario   *ScenarioData   `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	Storage    StorageData     `yaml:"storage,omitempty" json:"storage,omitempty"`
	REST       *RESTServerData `yaml:"rest,omitempty" json:"rest,omitempty"`
	Logging    LoggingData     `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// InputData names the rasters a run starts from
type InputData struct {
	LAIDir       string `yaml:"lai_dir" json:"lai_dir"`
	Landuse      string `yaml:"landuse" json:"landuse"`
	DEM          string `yaml:"dem" json:"dem"`
	AOIShapefile string `yaml:"aoi_shapefile,omitempty" json:"aoi_shapefile,omitempty"`
}

// ProcessingData controls aggregation.
// A nil ElevationBins selects automatic 100 m thresholds; a nil
// LanduseClasses keeps every class except 0.
type ProcessingData struct {
	ElevationBins   []int `yaml:"elevation_bins,omitempty" json:"elevation_bins,omitempty"`
	LanduseClasses  []int `yaml:"landuse_classes,omitempty" json:"landuse_classes,omitempty"`
	ContinueOnError bool  `yaml:"continue_on_error" json:"continue_on_error"`
}

// OutputData holds output locations
type OutputData struct {
	WorkDir     string `yaml:"work_dir" json:"work_dir"`
	ResultsDir  string `yaml:"results_dir" json:"results_dir"`
	KeepWorkDir bool   `yaml:"keep_work_dir" json:"keep_work_dir"`
}

// ScenarioData enables the land-use change projection
type ScenarioData struct {
	CurrentClass int    `yaml:"current_class" json:"current_class"`
	TargetClass  int    `yaml:"target_class" json:"target_class"`
	OutputDir    string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
}

// StorageData holds the configuration for the record sinks
type StorageData struct {
	SQLite      *SQLiteData      `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `yaml:"timescaledb,omitempty" json:"timescaledb,omitempty"`
}

type SQLiteData struct {
	Path string `yaml:"path" json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
}

// RESTServerData configures `laistats serve`
type RESTServerData struct {
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty"`
	HTTPPort   int    `yaml:"http_port,omitempty" json:"http_port,omitempty"`
}

// LoggingData configures the optional rotated log file
type LoggingData struct {
	Debug      bool   `yaml:"debug" json:"debug"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" json:"max_age_days,omitempty"`
}

const (
	DefaultWorkDir    = "temp"
	DefaultResultsDir = "results"
	DefaultHTTPPort   = 8080
)

// ApplyDefaults fills unset output directories and REST settings.
func (c *ConfigData) ApplyDefaults() {
	if c.Output.WorkDir == "" {
		c.Output.WorkDir = DefaultWorkDir
	}
	if c.Output.ResultsDir == "" {
		c.Output.ResultsDir = DefaultResultsDir
	}
	if c.Scenario != nil && c.Scenario.OutputDir == "" {
		c.Scenario.OutputDir = filepath.Join(c.Output.ResultsDir, "scenario")
	}
	if c.REST != nil && c.REST.HTTPPort == 0 {
		c.REST.HTTPPort = DefaultHTTPPort
	}
}

// Validate checks the settings a pipeline run depends on.
func (c *ConfigData) Validate() error {
	var errs []error
	if c.Input.LAIDir == "" {
		errs = append(errs, errors.New("input.lai_dir is required"))
	}
	if c.Input.Landuse == "" {
		errs = append(errs, errors.New("input.landuse is required"))
	}
	if c.Input.DEM == "" {
		errs = append(errs, errors.New("input.dem is required"))
	}
	if bins := c.Processing.ElevationBins; bins != nil {
		if len(bins) == 0 {
			errs = append(errs, errors.New("processing.elevation_bins is empty; omit it for automatic bins"))
		}
		for i := 1; i < len(bins); i++ {
			if bins[i] <= bins[i-1] {
				errs = append(errs, fmt.Errorf("processing.elevation_bins must be strictly increasing, %d follows %d", bins[i], bins[i-1]))
				break
			}
		}
	}
	if s := c.Scenario; s != nil && s.CurrentClass == s.TargetClass {
		errs = append(errs, fmt.Errorf("scenario.current_class and scenario.target_class are both %d", s.CurrentClass))
	}
	if c.Storage.SQLite != nil && c.Storage.SQLite.Path == "" {
		errs = append(errs, errors.New("storage.sqlite.path is required"))
	}
	if c.Storage.TimescaleDB != nil && c.Storage.TimescaleDB.ConnectionString == "" {
		errs = append(errs, errors.New("storage.timescaledb.connection_string is required"))
	}
	return errors.Join(errs...)
}
