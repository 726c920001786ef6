package cli

import (
	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(opts Options) *cobra.Command {
	session := &commands.Session{ConfigPath: opts.ConfigPath, Verbose: opts.Verbose, Slot: 1}

	root := &cobra.Command{
		Use:   "autopilot",
		Short: "autopilot - autonomous operating loop",
		Long: "autopilot asks a language model what to do next, runs the shell commands it proposes, " +
			"and feeds the results back, cycle after cycle, within a daily spend ceiling.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&session.ConfigPath, "config", session.ConfigPath, "Config file (default ~/.autopilot/config.yaml)")
	root.PersistentFlags().BoolVarP(&session.Verbose, "verbose", "v", session.Verbose, "Enable debug logging")
	root.PersistentFlags().IntVar(&session.Slot, "slot", session.Slot, "Instance slot to inspect")

	root.AddCommand(
		commands.NewRunCommand(session),
		commands.NewStatusCommand(session),
		commands.NewHistoryCommand(session),
		commands.NewAnswerCommand(session),
		commands.NewDoctorCommand(session),
		commands.NewConfigCommand(session),
		commands.NewVersionCommand(),
	)
	return root
}
