package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	appconfig "github.com/doeshing/autopilot/internal/application/config"
	"github.com/doeshing/autopilot/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with all subcommands
func NewConfigCommand(session *Session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect autopilot configuration",
	}

	configCmd.AddCommand(
		newConfigShowCommand(session),
		newConfigValidateCommand(session),
		newConfigDiffCommand(session),
		newConfigInitCommand(session),
	)
	return configCmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.WithContainer(cmd.Context(), func(_ context.Context, container *app.Container) error {
				data, err := config.Marshal(container.Config)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", container.ConfigLoader.Path(), data)
				return nil
			})
		},
	}
}

// newConfigValidateCommand creates the 'config validate' subcommand
func newConfigValidateCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.WithContainer(cmd.Context(), func(_ context.Context, container *app.Container) error {
				if err := appconfig.Validate(container.Config); err != nil {
					return fmt.Errorf("configuration invalid: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
				return nil
			})
		},
	}
}

// newConfigDiffCommand creates the 'config diff' subcommand
func newConfigDiffCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show how the configuration deviates from the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.WithContainer(cmd.Context(), func(_ context.Context, container *app.Container) error {
				displayConfigDiff(cmd.OutOrStdout(), cmp.Diff(config.ResolvedDefaults(), container.Config))
				return nil
			})
		},
	}
}

// displayConfigDiff prints a go-cmp diff, "-" lines being defaults
func displayConfigDiff(out io.Writer, diff string) {
	if diff == "" {
		fmt.Fprintln(out, MsgNoDifferencesFromDefault)
		return
	}
	fmt.Fprintln(out, "(-default +current)")
	fmt.Fprint(out, diff)
}

// newConfigInitCommand creates the 'config init' subcommand
func newConfigInitCommand(session *Session) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.NewFileLoader(session.ConfigPath).Path()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
