package cli

import (
	"fmt"

	"cvcoach/internal/storage"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema for saved documents",
	Long: `Apply the PostgreSQL schema used to store saved CV documents. The database
is taken from storage.database.url (or CVCOACH_STORAGE_DATABASE_URL). The
schema is idempotent, so running it again is safe.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Storage.Database.URL == "" {
		return fmt.Errorf("storage.database.url is not set")
	}

	docs, err := storage.ConnectPostgres(cmd.Context(), cfg.Storage.Database.URL, 1)
	if err != nil {
		return err
	}
	defer docs.Close()

	if err := docs.Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info("Database schema applied")
	fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
	return nil
}
