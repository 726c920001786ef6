package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/infrastructure/history"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(session *Session) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the cycle ledger",
	}

	historyCmd.AddCommand(
		newHistoryListCommand(session),
		newHistorySearchCommand(session),
		newHistoryExportCommand(session),
		newHistoryPruneCommand(session),
	)

	return historyCmd
}

// withLedger opens the ledger of the selected slot for the duration of fn
func withLedger(cmd *cobra.Command, session *Session, fn func(history.Store) error) error {
	return session.WithContainer(cmd.Context(), func(_ context.Context, container *app.Container) error {
		store := container.History(session.SlotIndex())
		defer store.Close()
		return fn(store)
	})
}

// newHistoryListCommand creates the 'history list' subcommand
func newHistoryListCommand(session *Session) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, session, func(store history.Store) error {
				return listHistoryEntries(cmd.OutOrStdout(), store, limit, "")
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", domain.DefaultHistoryLimit, "Max entries to show")
	return cmd
}

// newHistorySearchCommand creates the 'history search' subcommand
func newHistorySearchCommand(session *Session) *cobra.Command {
	var searchLimit int

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search descriptions, commands, questions and errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withLedger(cmd, session, func(store history.Store) error {
				return listHistoryEntries(cmd.OutOrStdout(), store, searchLimit, query)
			})
		},
	}

	cmd.Flags().IntVar(&searchLimit, "limit", domain.DefaultHistorySearchLimit, "Limit search results")
	return cmd
}

// newHistoryExportCommand creates the 'history export' subcommand
func newHistoryExportCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export the ledger to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, session, func(store history.Store) error {
				n, err := store.ExportJSON(args[0])
				if err != nil {
					return fmt.Errorf("failed to export history to %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %s\n", n, args[0])
				return nil
			})
		},
	}
}

// newHistoryPruneCommand creates the 'history prune' subcommand
func newHistoryPruneCommand(session *Session) *cobra.Command {
	var retainDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ledger rows older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retainDays <= 0 {
				return errors.New(ErrInvalidRetainDays)
			}
			return withLedger(cmd, session, func(store history.Store) error {
				cutoff := time.Now().AddDate(0, 0, -retainDays)
				removed, err := store.PruneOlderThan(cutoff)
				if err != nil {
					return fmt.Errorf("failed to prune old history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) older than %d day(s)\n", removed, retainDays)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&retainDays, "days", domain.DefaultHistoryRetainDays, "Days to retain history")
	return cmd
}

// listHistoryEntries prints ledger rows, optionally filtered
func listHistoryEntries(out io.Writer, store history.Store, limit int, query string) error {
	records, err := store.Records(limit, query)
	if err != nil {
		return fmt.Errorf("failed to retrieve history records: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}
	renderRecords(out, records)
	return nil
}
