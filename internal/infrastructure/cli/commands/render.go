package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/doeshing/autopilot/internal/domain"
)

// renderRecords prints ledger rows as a table
func renderRecords(out io.Writer, records []domain.CycleRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Cycle", "Started", "Status", "Model", "Cost", "Description"})
	for _, rec := range records {
		description := rec.Description
		if rec.Status == domain.CycleFailed && rec.Error != "" {
			description = rec.Error
		}
		tw.AppendRow(table.Row{
			rec.CycleID,
			formatAge(rec.StartedAt),
			rec.Status,
			rec.Model,
			formatCost(rec.Cost),
			clip(description, DescriptionColumnWidth),
		})
	}
	tw.Render()
}

// formatAge renders a timestamp relative to now, e.g. "3 minutes ago"
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}

// clip shortens s to width runes on a single line
func clip(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
