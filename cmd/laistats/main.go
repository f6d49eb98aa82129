package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/laistats/internal/app"
	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/pkg/config"
	"github.com/spf13/cobra"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

var (
	cfgFile string
	debug   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "laistats",
		Short:         "Aggregate LAI rasters by land use and elevation, and project land use scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(aggregateCmd())
	rootCmd.AddCommand(characteristicYearCmd())
	rootCmd.AddCommand(clustersCmd())
	rootCmd.AddCommand(adjustCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "laistats: %v\n", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// setup loads the configuration and initializes logging from it.
func setup() (*app.App, *config.ConfigData, error) {
	cfgData, err := loadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	lc := cfgData.Logging
	if lc.File != "" {
		err = log.InitWithFile(debug || lc.Debug, log.FileOptions{
			Path:       lc.File,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
		})
	} else {
		err = log.Init(debug || lc.Debug)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return app.New(cfgData, log.GetSugaredLogger()), cfgData, nil
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	cfgData, err := config.NewYAMLProvider(filename).LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the --config flag? Run with -h for help: %w", err)
	}
	return cfgData, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: aggregate, export every view, adjust and store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup()
			if err != nil {
				return err
			}
			sum, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			log.Infof("run %s wrote %d files", sum.Run.ID, len(sum.Outputs))
			return nil
		},
	}
}

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Align the inputs and write the daily LAI record table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cfgData, err := setup()
			if err != nil {
				return err
			}
			defer a.Cleanup()

			p, err := a.Prepare(cmd.Context())
			if err != nil {
				return err
			}
			tbl, err := a.Aggregate(cmd.Context(), p)
			if err != nil {
				return err
			}
			path, err := a.ExportRecords(tbl)
			if err != nil {
				return err
			}
			log.Infof("wrote %d records to %s (results dir %s)", len(tbl), path, cfgData.Output.ResultsDir)
			return nil
		},
	}
}

func characteristicYearCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "characteristic-year",
		Short: "Average an exported record table across years per month-day",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, _, err := setup()
			if err != nil {
				return err
			}
			tbl, err := a.LoadRecords(input)
			if err != nil {
				return err
			}
			path, err := a.ExportCharacteristicYear(tbl)
			if err != nil {
				return err
			}
			log.Infof("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Record table CSV (default: <results_dir>/"+app.DailyLAIFile+")")
	return cmd
}

func clustersCmd() *cobra.Command {
	var input, merge string

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Split a record table into per (year, landuse, elevation) CSVs, or merge them back",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, _, err := setup()
			if err != nil {
				return err
			}

			if merge != "" {
				path, tbl, err := a.MergeClusterDir(merge)
				if err != nil {
					return err
				}
				log.Infof("merged %d records into %s", len(tbl), path)
				return nil
			}

			tbl, err := a.LoadRecords(input)
			if err != nil {
				return err
			}
			paths, err := a.ExportClusters(tbl)
			if err != nil {
				return err
			}
			log.Infof("wrote %d cluster files", len(paths))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Record table CSV (default: <results_dir>/"+app.DailyLAIFile+")")
	cmd.Flags().StringVar(&merge, "merge", "", "Merge the cluster CSVs in this directory instead of splitting")
	return cmd
}

func adjustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjust",
		Short: "Project the configured land use scenario onto the LAI rasters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup()
			if err != nil {
				return err
			}
			defer a.Cleanup()

			p, err := a.Prepare(cmd.Context())
			if err != nil {
				return err
			}
			tbl, err := a.Aggregate(cmd.Context(), p)
			if err != nil {
				return err
			}
			res, err := a.Adjust(cmd.Context(), p, tbl)
			if err != nil {
				return err
			}
			log.Infof("adjusted %d rasters, %d without matching rows", len(res.Adjusted), len(res.PassThrough))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup()
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("laistats %s\n", version)
		},
	}
}
