package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/autopilot/internal/app"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// NewAnswerCommand creates the answer command that resolves an operator request
func NewAnswerCommand(session *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <cycle> <text|->",
		Short: "Answer a pending operator request (use - to read stdin)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid cycle id %q", args[0])
			}
			text, err := answerText(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			return session.WithContainer(cmd.Context(), func(_ context.Context, container *app.Container) error {
				return writeAnswer(cmd.OutOrStdout(), container.CycleStore(session.SlotIndex()), id, text)
			})
		},
	}
}

// answerText joins the arguments or reads stdin when the only argument is "-"
func answerText(in io.Reader, args []string) (string, error) {
	text := strings.Join(args, " ")
	if len(args) == 1 && args[0] == "-" {
		raw, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New(ErrEmptyAnswer)
	}
	return text, nil
}

// writeAnswer drops the operator's answer into the cycle directory
func writeAnswer(out io.Writer, store ports.CycleStore, id int, text string) error {
	h, ok := store.Open(id)
	if !ok {
		return fmt.Errorf("cycle %d does not exist", id)
	}
	if _, asked, err := store.Read(h, domain.AskFile); err != nil {
		return err
	} else if !asked {
		fmt.Fprintf(out, "warning: cycle %d has no pending question\n", id)
	}
	if err := store.Write(h, domain.HumanResultFile, []byte(text+"\n")); err != nil {
		return fmt.Errorf("write answer: %w", err)
	}
	fmt.Fprintf(out, "Answer recorded for cycle %d\n", id)
	return nil
}
