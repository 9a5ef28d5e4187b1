package cli

import (
	"context"

	"github.com/spf13/cobra"

	"rssreader/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigrate only opens the store; opening applies the schema.
func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		failure(cmd.ErrOrStderr(), "Migration failed: %v", err)
		return err
	}
	defer store.Close()

	success(cmd.OutOrStdout(), "Schema is up to date (%s)", store.Driver())
	return nil
}
