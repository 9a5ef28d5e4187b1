package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"rssreader/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync with Inoreader and exit",
	Long: `Push queued local changes, then pull subscriptions, tags and the newest
articles from Inoreader. Exits with status 1 when the sync fails.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := cmd.OutOrStdout()
	result, err := a.syncer.Run(ctx, syncer.TriggerCLI)
	if err != nil {
		failure(out, "Sync failed: %v", err)
		return err
	}

	success(out, "Sync %s completed in %s", result.SyncID, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	table := newTable(out, "Step", "Count")
	table.Bulk([][]string{
		{"Changes pushed", strconv.Itoa(result.ChangesPushed)},
		{"Feeds synced", strconv.Itoa(result.FeedsSynced)},
		{"Feeds removed", strconv.Itoa(result.FeedsRemoved)},
		{"Tags synced", strconv.Itoa(result.TagsSynced)},
		{"Articles fetched", strconv.Itoa(result.ArticlesFetched)},
		{"Articles admitted", strconv.Itoa(result.ArticlesAdmitted)},
		{"Articles skipped", strconv.Itoa(result.ArticlesSkipped)},
		{"Articles resurrected", strconv.Itoa(result.ArticlesResurrected)},
	})
	return table.Render()
}
