package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-surveillance/internal/app"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the postgres schema",
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *storage.Migrator) error {
			return m.Up()
		})
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withMigrator(func(m *storage.Migrator) error {
			return m.Down(steps)
		})
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *storage.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
}

func withMigrator(fn func(m *storage.Migrator) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	db, err := storage.OpenPostgres(app.PostgresConfig(cfg, logger))
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := storage.NewMigrator(db, logger)
	if err != nil {
		return err
	}

	return fn(m)
}
