package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete read articles past retention and purge old tombstones",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := cmd.OutOrStdout()
	result, err := a.cleanup.Run(ctx)
	if err != nil {
		failure(out, "Cleanup failed: %v", err)
		return err
	}

	success(out, "Cleanup completed")
	table := newTable(out, "Item", "Count")
	table.Bulk([][]string{
		{"Articles deleted", strconv.Itoa(result.ArticlesDeleted)},
		{"Delete chunks", strconv.Itoa(result.Chunks)},
		{"Tombstones purged", strconv.Itoa(result.TombstonesPurged)},
		{"Queue entries purged", strconv.Itoa(result.QueueEntriesPurged)},
	})
	return table.Render()
}
