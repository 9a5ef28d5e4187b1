package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rssreader/internal/models"
	"rssreader/internal/syncer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync, today's API usage and database counts",
	Long: `Display the outcome of the last sync, the Inoreader request budget for the
current UTC day and the size of the local database.

Examples:
  rssreader status             # Show status tables
  rssreader status --json      # Output as JSON`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "output as JSON")
}

type statusReport struct {
	LastSync *syncer.LastSync     `json:"last_sync"`
	Usage    models.UsageReport   `json:"api_usage"`
	Database models.DatabaseStats `json:"database"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var report statusReport
	if report.LastSync, err = a.syncer.LastResult(ctx); err != nil {
		return err
	}
	if report.Usage, err = a.limiter.Usage(ctx); err != nil {
		return err
	}
	if report.Database, err = a.store.Stats(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	section(out, "Last sync")
	rows := [][]string{
		{"Status", stateColor(report.LastSync.Status)},
		{"Time", formatTime(report.LastSync.Time)},
	}
	if report.LastSync.Error != "" {
		rows = append(rows, []string{"Error", report.LastSync.Error})
	}
	if r := report.LastSync.Result; r != nil {
		rows = append(rows,
			[]string{"Trigger", r.Trigger},
			[]string{"Admitted / skipped / resurrected",
				fmt.Sprintf("%d / %d / %d", r.ArticlesAdmitted, r.ArticlesSkipped, r.ArticlesResurrected)},
			[]string{"Changes pushed", strconv.Itoa(r.ChangesPushed)},
		)
	}
	last := newTable(out, "Field", "Value")
	last.Bulk(rows)
	if err := last.Render(); err != nil {
		return err
	}

	u := report.Usage
	section(out, "API usage ("+u.Date+" UTC)")
	usage := newTable(out, "Zone", "Used", "Limit", "Remaining", "Usage")
	usage.Bulk([][]string{
		{"1 (read)", strconv.Itoa(u.Zone1Used), strconv.Itoa(u.Zone1Limit), strconv.Itoa(u.Zone1Remaining), usageColor(u.Zone1Percent)},
		{"2 (write)", strconv.Itoa(u.Zone2Used), strconv.Itoa(u.Zone2Limit), strconv.Itoa(u.Zone2Remaining), usageColor(percentOf(u.Zone2Used, u.Zone2Limit))},
	})
	if err := usage.Render(); err != nil {
		return err
	}

	d := report.Database
	section(out, "Database ("+a.store.Driver()+")")
	db := newTable(out, "Table", "Rows")
	db.Bulk([][]string{
		{"Feeds", strconv.Itoa(d.Feeds)},
		{"Articles", strconv.Itoa(d.Articles)},
		{"Unread", strconv.Itoa(d.Unread)},
		{"Tags", strconv.Itoa(d.Tags)},
		{"Tombstones", strconv.Itoa(d.Tombstones)},
		{"Queued changes", strconv.Itoa(d.QueueSize)},
	})
	return db.Render()
}

func percentOf(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) * 100 / float64(limit)
}
