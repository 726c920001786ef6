package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	"github.com/doeshing/autopilot/internal/application/budget"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/infrastructure/instance"
	"github.com/doeshing/autopilot/internal/ports"
)

// NewStatusCommand creates the status command
func NewStatusCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest cycle, today's spend and any pending operator request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.WithContainer(cmd.Context(), func(ctx context.Context, container *app.Container) error {
				report, err := collectStatus(container, session.SlotIndex(), time.Now())
				if err != nil {
					return err
				}
				displayStatus(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

// statusReport summarises one instance slot
type statusReport struct {
	Slot        int
	StateRoot   string
	Running     bool
	LatestCycle int
	Commands    []string
	PendingAsk  string
	SpentToday  float64
	DailyLimit  float64
	LastRecord  *domain.CycleRecord
	ResponseLog int64
}

// collectStatus reads the slot's state without claiming it
func collectStatus(container *app.Container, slot int, now time.Time) (statusReport, error) {
	cfg := container.Config
	report := statusReport{
		Slot:       slot,
		StateRoot:  container.StateRoot(slot),
		DailyLimit: cfg.Budget.DailyLimit,
	}
	for _, held := range instance.Occupied(cfg.Engine.StateDir, cfg.Engine.MaxInstances) {
		if held == slot {
			report.Running = true
		}
	}

	store := container.CycleStore(slot)
	latest, err := store.LatestCycleID()
	if err != nil {
		return report, fmt.Errorf("scan cycles: %w", err)
	}
	report.LatestCycle = latest
	if h, ok := store.Open(latest); ok {
		report.Commands = readCommands(store, h)
		report.PendingAsk = pendingAsk(store, h)
	}

	ledger := container.History(slot)
	defer ledger.Close()
	spent, err := ledger.SpentSince(budget.StartOfDay(now))
	if err != nil {
		return report, fmt.Errorf("read ledger: %w", err)
	}
	report.SpentToday = spent
	if records, err := ledger.Records(1, ""); err == nil && len(records) > 0 {
		report.LastRecord = &records[0]
	}

	if size, ok := fileSize(filepath.Join(report.StateRoot, domain.ResponseLogName)); ok {
		report.ResponseLog = size
	}
	return report, nil
}

func readCommands(store ports.CycleStore, h ports.CycleHandle) []string {
	raw, ok, err := store.Read(h, domain.CommandFile)
	if err != nil || !ok {
		return nil
	}
	var envelope struct {
		Command domain.CommandList `json:"command"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	return envelope.Command.Commands
}

// pendingAsk returns the question of a cycle still waiting for an answer
func pendingAsk(store ports.CycleStore, h ports.CycleHandle) string {
	raw, ok, err := store.Read(h, domain.AskFile)
	if err != nil || !ok {
		return ""
	}
	if _, answered, _ := store.Read(h, domain.HumanResultFile); answered {
		return ""
	}
	var envelope struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return envelope.Task
}

// displayStatus renders the status report
func displayStatus(out io.Writer, report statusReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	state := "stopped"
	if report.Running {
		state = "running"
	}
	tw.AppendRow(table.Row{"Slot", fmt.Sprintf("%d (%s)", report.Slot, state)})
	tw.AppendRow(table.Row{"State root", report.StateRoot})
	if report.LatestCycle == 0 {
		tw.AppendRow(table.Row{"Latest cycle", MsgNoCycles})
	} else {
		tw.AppendRow(table.Row{"Latest cycle", report.LatestCycle})
	}
	if len(report.Commands) > 0 {
		tw.AppendRow(table.Row{"Commands", clip(strings.Join(report.Commands, " && "), DescriptionColumnWidth)})
	}
	if report.LastRecord != nil {
		tw.AppendRow(table.Row{"Last recorded", fmt.Sprintf("cycle %d %s %s",
			report.LastRecord.CycleID, report.LastRecord.Status, formatAge(report.LastRecord.FinishedAt))})
	}
	tw.AppendRow(table.Row{"Spent today", fmt.Sprintf("%s of %s", formatCost(report.SpentToday), formatCost(report.DailyLimit))})
	if report.ResponseLog > 0 {
		tw.AppendRow(table.Row{"Response log", humanize.Bytes(uint64(report.ResponseLog))})
	}
	if report.PendingAsk != "" {
		tw.AppendRow(table.Row{"Waiting for operator", clip(report.PendingAsk, DescriptionColumnWidth)})
		tw.AppendRow(table.Row{"Answer with", fmt.Sprintf("autopilot answer %d <text>", report.LatestCycle)})
	}
	tw.Render()
}

func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}
