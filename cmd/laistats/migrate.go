package main

import (
	"fmt"
	"strconv"

	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/internal/storage/sqlite"
	"github.com/chrissnell/laistats/pkg/migrate"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the schema version of the SQLite result store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrator, _ []string) error {
			current, err := m.CurrentVersion()
			if err != nil {
				return err
			}
			pending, err := m.Pending()
			if err != nil {
				return err
			}

			fmt.Printf("Current version: %d\n", current)
			fmt.Printf("Pending migrations: %d\n", len(pending))
			for _, migration := range pending {
				fmt.Printf("  %d: %s\n", migration.Version, migration.Name)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrator, _ []string) error {
			return m.MigrateUp()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *migrate.Migrator, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid target version: %w", err)
			}
			return m.MigrateTo(target)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down <version>",
		Short: "Roll back to a target version",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *migrate.Migrator, args []string) error {
			target, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid target version: %w", err)
			}
			return m.MigrateDown(target)
		}),
	})

	return cmd
}

// withMigrator opens the configured SQLite store and hands its migrator
// to fn.
func withMigrator(fn func(m *migrate.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, cfgData, err := setup()
		if err != nil {
			return err
		}
		if cfgData.Storage.SQLite == nil {
			return fmt.Errorf("no storage.sqlite configured")
		}

		db, err := sqlite.Open(cmd.Context(), cfgData.Storage.SQLite.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := fn(sqlite.NewMigrator(db, log.GetSugaredLogger()), args); err != nil {
			return fmt.Errorf("migration command failed: %w", err)
		}
		return nil
	}
}
