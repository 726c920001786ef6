package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	"github.com/doeshing/autopilot/internal/domain"
)

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose environment setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.WithContainer(cmd.Context(), func(ctx context.Context, container *app.Container) error {
				ledger := container.History(session.SlotIndex())
				defer ledger.Close()
				container.DoctorService.Ledger = ledger
				return runDoctorDiagnostics(ctx, cmd.OutOrStdout(), container)
			})
		},
	}
}

// runDoctorDiagnostics runs environment diagnostics
func runDoctorDiagnostics(ctx context.Context, out io.Writer, container *app.Container) error {
	if container.DoctorService == nil {
		return errors.New(ErrDoctorServiceUnavailable)
	}

	report, err := container.DoctorService.Run(ctx)

	// Display report even if there were errors
	displayDoctorReport(out, report)

	if err != nil {
		return fmt.Errorf("diagnostics completed with errors: %w", err)
	}
	if report.Failed() {
		return errors.New("one or more checks failed")
	}

	return nil
}

// displayDoctorReport prints one line per check followed by a tally
func displayDoctorReport(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		fmt.Fprintf(out, "[%-5s] %-18s %s\n",
			strings.ToUpper(string(check.Status)),
			check.Name,
			check.Details)
	}
	fmt.Fprintf(out, "\n%d ok, %d warning(s), %d error(s)\n",
		report.Count(domain.HealthOK),
		report.Count(domain.HealthWarn),
		report.Count(domain.HealthError))
}
