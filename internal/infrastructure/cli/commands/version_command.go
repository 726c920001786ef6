package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/version"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}
			displayBuildInfo(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the release tag")
	return cmd
}

func displayBuildInfo(out io.Writer) {
	commit := version.Commit
	if commit == "" {
		commit = "unknown"
	}
	fmt.Fprintf(out, "autopilot %s (%s)\n", version.Version, commit)
	if version.BuildDate != "" {
		fmt.Fprintf(out, "built %s\n", version.BuildDate)
	}
	fmt.Fprintf(out, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
