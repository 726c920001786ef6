package domain

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionStatus classifies how a command finished.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimedOut  ExecutionStatus = "timeout"
)

// Output stream markers used in execution reports.
const (
	StdoutMarker    = "::stdout::"
	StderrMarker    = "::stderr::"
	HumanMarker     = "::human::"
	TruncatedMarker = "...[output truncated]"
)

// CommandOutcome is the bounded result of one command.
type CommandOutcome struct {
	Command         string          `json:"command"`
	Status          ExecutionStatus `json:"status"`
	ExitCode        int             `json:"exit_code"`
	PID             int             `json:"pid,omitempty"`
	Stdout          string          `json:"stdout,omitempty"`
	Stderr          string          `json:"stderr,omitempty"`
	StdoutTruncated bool            `json:"stdout_truncated,omitempty"`
	StderrTruncated bool            `json:"stderr_truncated,omitempty"`
	StartError      string          `json:"start_error,omitempty"`
	Timeout         time.Duration   `json:"timeout,omitempty"`
	Duration        time.Duration   `json:"duration"`
}

// Summary renders the one-line status sentence of the outcome.
func (o CommandOutcome) Summary() string {
	switch o.Status {
	case ExecutionSucceeded:
		return fmt.Sprintf("Command '%s' executed successfully.", o.Command)
	case ExecutionTimedOut:
		return fmt.Sprintf("Command '%s' timed out after %s and was left running with pid %d.", o.Command, o.Timeout, o.PID)
	default:
		if o.StartError != "" {
			return fmt.Sprintf("Command '%s' could not be started: %s.", o.Command, o.StartError)
		}
		return fmt.Sprintf("Command '%s' failed with return code %d.", o.Command, o.ExitCode)
	}
}

// String renders the outcome the way it is fed back to the model.
func (o CommandOutcome) String() string {
	var b strings.Builder
	b.WriteString(o.Summary())
	if o.Stdout != "" {
		b.WriteString("\n" + StdoutMarker + "\n")
		b.WriteString(o.Stdout)
	}
	if o.Stderr != "" {
		b.WriteString("\n" + StderrMarker + "\n")
		b.WriteString(o.Stderr)
	}
	return b.String()
}

// ExecutionReport is the ordered result of one or more commands.
type ExecutionReport struct {
	Outcomes []CommandOutcome `json:"outcomes"`
}

// String concatenates the rendered outcomes in execution order.
func (r ExecutionReport) String() string {
	parts := make([]string, 0, len(r.Outcomes))
	for _, outcome := range r.Outcomes {
		parts = append(parts, outcome.String())
	}
	return strings.Join(parts, "\n")
}

// Succeeded reports whether every command exited with status zero.
func (r ExecutionReport) Succeeded() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Status != ExecutionSucceeded {
			return false
		}
	}
	return true
}
