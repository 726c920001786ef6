package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// maxCaptureBytes bounds how much of a stream is read back into memory.
const maxCaptureBytes = 1 << 20

// Options configures a LocalExecutor.
type Options struct {
	Shell        string
	Timeout      time.Duration
	OutputLimit  int
	OutputMargin int
	// CaptureDir holds the short-lived output files. Empty means os.TempDir().
	CaptureDir string
}

// LocalExecutor runs commands on the host shell.
// A command that outlives its timeout is left running and reported with its pid.
type LocalExecutor struct {
	shell      string
	timeout    time.Duration
	limit      int
	margin     int
	captureDir string
}

// NewLocalExecutor builds a new executor, shell defaults to $SHELL then /bin/sh.
func NewLocalExecutor(opts Options) *LocalExecutor {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultCommandTimeout
	}
	limit := opts.OutputLimit
	if limit <= 0 {
		limit = domain.DefaultOutputLimit
	}
	return &LocalExecutor{
		shell:      shell,
		timeout:    timeout,
		limit:      limit,
		margin:     opts.OutputMargin,
		captureDir: opts.CaptureDir,
	}
}

// Shell returns the interpreter commands are run through.
func (e *LocalExecutor) Shell() string {
	return e.shell
}

// Run implements ports.CommandExecutor.
//
// Output goes to unlinked temporary files rather than pipes: a background
// child inherits a descriptor that stays writable after Run returns and after
// the engine exits.
func (e *LocalExecutor) Run(ctx context.Context, command string) domain.CommandOutcome {
	outcome := domain.CommandOutcome{Command: command}

	stdout, err := e.captureFile()
	if err != nil {
		return startFailure(outcome, err)
	}
	defer stdout.Close()
	stderr, err := e.captureFile()
	if err != nil {
		return startFailure(outcome, err)
	}
	defer stderr.Close()

	c := exec.Command(e.shell, "-c", command)
	c.Stdout = stdout
	c.Stderr = stderr
	// Own process group so a terminal interrupt never reaches detached commands.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := c.Start(); err != nil {
		return startFailure(outcome, err)
	}
	outcome.PID = c.Process.Pid

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		outcome.Duration = time.Since(start)
		e.classify(&outcome, c, err)
	case <-timer.C:
		outcome.Duration = time.Since(start)
		outcome.Status = domain.ExecutionTimedOut
		outcome.Timeout = e.timeout
		outcome.ExitCode = -1
	case <-ctx.Done():
		outcome.Duration = time.Since(start)
		outcome.Status = domain.ExecutionTimedOut
		outcome.Timeout = outcome.Duration.Round(time.Millisecond)
		outcome.ExitCode = -1
	}

	outcome.Stdout, outcome.StdoutTruncated = e.bound(stdout)
	outcome.Stderr, outcome.StderrTruncated = e.bound(stderr)
	return outcome
}

// captureFile creates an output file and unlinks it at once; the open
// descriptors keep it alive for as long as anyone writes to it.
func (e *LocalExecutor) captureFile() (*os.File, error) {
	f, err := os.CreateTemp(e.captureDir, "autopilot-cmd-*")
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("unlink capture file: %w", err)
	}
	return f, nil
}

func startFailure(outcome domain.CommandOutcome, err error) domain.CommandOutcome {
	outcome.Status = domain.ExecutionFailed
	outcome.ExitCode = -1
	outcome.StartError = err.Error()
	return outcome
}

// RunMany runs commands in order; a failure never stops the remaining commands.
func (e *LocalExecutor) RunMany(ctx context.Context, commands []string) domain.ExecutionReport {
	report := domain.ExecutionReport{Outcomes: make([]domain.CommandOutcome, 0, len(commands))}
	for _, command := range commands {
		if ctx.Err() != nil {
			break
		}
		report.Outcomes = append(report.Outcomes, e.Run(ctx, command))
	}
	return report
}

func (e *LocalExecutor) classify(outcome *domain.CommandOutcome, c *exec.Cmd, err error) {
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.Status = domain.ExecutionFailed
			outcome.ExitCode = exitErr.ExitCode()
			return
		}
		outcome.Status = domain.ExecutionFailed
		outcome.ExitCode = -1
		outcome.StartError = err.Error()
		return
	}
	code := 0
	if c.ProcessState != nil {
		code = c.ProcessState.ExitCode()
	}
	outcome.ExitCode = code
	if code == 0 {
		outcome.Status = domain.ExecutionSucceeded
	} else {
		outcome.Status = domain.ExecutionFailed
	}
}

func (e *LocalExecutor) bound(f *os.File) (string, bool) {
	data, dropped := readHead(f, maxCaptureBytes)
	text := decode(data)
	out, truncated := Truncate(text, e.limit, e.margin)
	if dropped > 0 && !truncated {
		out += "\n" + domain.TruncatedMarker
		truncated = true
	}
	return out, truncated
}

// readHead returns up to max bytes from the start of f and how many more it held.
// It reads at absolute offsets, so a process still writing is not disturbed.
func readHead(f *os.File, max int64) ([]byte, int64) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0
	}
	size := info.Size()
	n := size
	if n > max {
		n = max
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return buf[:read], 0
	}
	return buf[:read], size - int64(read)
}

// Truncate keeps text of up to limit+margin characters whole and otherwise
// cuts it to limit characters followed by a truncation marker.
func Truncate(text string, limit, margin int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	total := utf8.RuneCountInString(text)
	if total <= limit+margin {
		return text, false
	}
	runes := []rune(text)
	return fmt.Sprintf("%s\n%s (%d of %d characters shown)", string(runes[:limit]), domain.TruncatedMarker, limit, total), true
}

// decode returns text output as is and a quoted form of binary output.
func decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strconv.Quote(string(data))
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
