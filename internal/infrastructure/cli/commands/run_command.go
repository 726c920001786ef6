package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	"github.com/doeshing/autopilot/internal/domain"
)

// NewRunCommand creates the run command that drives the cycle loop
func NewRunCommand(session *Session) *cobra.Command {
	var (
		model string
		once  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autonomous cycle loop",
		Long: "Run repeatedly asks the configured model for the next directive, executes its commands, " +
			"records the outcome and feeds it into the next cycle. It stops on an exit directive or a signal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return session.WithContainer(ctx, func(ctx context.Context, container *app.Container) error {
				return runEngine(ctx, cmd.OutOrStdout(), container, app.EngineOptions{Model: model, Once: once})
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Override model name (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and return its error")
	return cmd
}

// runEngine claims a slot and runs until exit or cancellation
func runEngine(ctx context.Context, out io.Writer, container *app.Container, opts app.EngineOptions) error {
	engine, err := container.BuildEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(out, "autopilot %s: slot %d, model %s, state %s\n",
		engine.RunID, engine.Slot.Index, engine.Model.Name, engine.Slot.StateRoot)

	err = engine.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrExitRequested):
		fmt.Fprintf(out, "Exit requested at cycle %d.\n", engine.Orchestrator.CycleID())
		return nil
	case err != nil && ctx.Err() != nil:
		fmt.Fprintln(out, "Interrupted; detached commands keep running.")
		return nil
	}
	return err
}
