package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/store/postgres"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("db requires a subcommand")
		_ = cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create and/or upgrade the database schema",
	Long: `Create and/or upgrade the database schema.

Example:
  ssoctl db migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMigrator()
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()

		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				pterm.Info.Println("No migrations to run, database is up to date")
				return nil
			}
			return fmt.Errorf("migration failed: %w", err)
		}
		version, _, _ := m.Version()
		pterm.Success.Printf("Migrated to version %d\n", version)
		return nil
	},
}

var dbDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back database migrations",
	Long: `Roll back the given number of migrations (default 1).

Example:
  ssoctl db down
  ssoctl db down 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}

		m, err := openMigrator()
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()

		if err := m.Steps(-steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		version, _, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			pterm.Success.Println("Rolled back every migration")
			return nil
		}
		pterm.Success.Printf("Rolled back to version %d\n", version)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMigrator()
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()

		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				pterm.Info.Println("No migrations have been applied yet")
				return nil
			}
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		pterm.Info.Printf("Current version: %d\n", version)
		if dirty {
			pterm.Warning.Println("Database is in a dirty state")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbDownCmd, dbStatusCmd)
}

func openMigrator() (*migrate.Migrate, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("schema commands need DB_DRIVER=postgres, got %q", cfg.Database.Driver)
	}
	return postgres.NewMigrator(app.PostgresConfig(cfg.Database))
}
