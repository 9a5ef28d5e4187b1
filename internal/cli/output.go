package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	return table
}

func section(w io.Writer, title string) {
	color.New(color.FgWhite, color.Bold).Fprintf(w, "\n%s\n", title)
}

func success(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(w, "✓ "+format+"\n", args...)
}

func failure(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(w, "✗ "+format+"\n", args...)
}

// stateColor renders a sync state, green when completed and red when failed.
func stateColor(state string) string {
	switch state {
	case "completed":
		return color.GreenString(state)
	case "failed":
		return color.RedString(state)
	case "running", "pending":
		return color.YellowString(state)
	default:
		return state
	}
}

// usageColor renders a usage percentage, yellow from 80% and red from 95%.
func usageColor(percent float64) string {
	s := fmt.Sprintf("%.1f%%", percent)
	switch {
	case percent >= 95:
		return color.RedString(s)
	case percent >= 80:
		return color.YellowString(s)
	default:
		return color.GreenString(s)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s ago)", t.Local().Format(time.RFC3339), time.Since(*t).Round(time.Second))
}
