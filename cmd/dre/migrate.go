package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/dre-classifier/internal/config"
	"github.com/Veraticus/dre-classifier/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on start; this one is for provisioning and
for checking the schema version.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show the current schema version without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()

	if status {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		store, err := storage.NewSQLiteStorage(settings.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\nSchema version: %d (latest %d)\n",
			settings.Database.Path, version, storage.ExpectedSchemaVersion)
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = a.Close() }()

	slog.Info("Database migrations completed", "database", a.settings.Database.Path, "version", storage.ExpectedSchemaVersion)
	return nil
}
