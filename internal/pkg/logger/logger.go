package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the sinks of a Logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Verbose forces debug level.
	Verbose bool
	// Stdout receives human readable records. Nil means os.Stdout.
	Stdout io.Writer
	// FilePath, when set, receives every record as JSON (the response log).
	FilePath string
	// Journal sends records to the systemd journal when running as a service.
	Journal bool
}

// Logger fans structured records out to the terminal, the response log and the journal.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// New builds a Logger from options.
func New(opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var handlers []slog.Handler

	terminal := slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level})
	if opts.Journal && isSystemdService() {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
			record.Add("error", err.Error())
			_ = terminal.Handle(context.Background(), record)
			handlers = append(handlers, terminal)
		} else {
			handlers = append(handlers, journal)
		}
	} else {
		handlers = append(handlers, terminal)
	}

	var file *os.File
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open response log: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return &Logger{
		slog:  slog.New(slogmulti.Fanout(handlers...)),
		level: level,
		file:  file,
	}, nil
}

// NewStd creates a terminal-only Logger.
func NewStd(verbose bool) *Logger {
	l, _ := New(Options{Verbose: verbose, Stdout: os.Stderr})
	return l
}

// Discard creates a Logger that drops every record.
func Discard() *Logger {
	level := new(slog.LevelVar)
	return &Logger{
		slog:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})),
		level: level,
	}
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetLevel changes the minimum level of every sink.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Close releases the response log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(slog.LevelDebug, msg, nil, fields)
}

func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(slog.LevelInfo, msg, nil, fields)
}

func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(slog.LevelWarn, msg, nil, fields)
}

func (l *Logger) Error(msg string, err error, fields map[string]interface{}) {
	l.log(slog.LevelError, msg, err, fields)
}

func (l *Logger) log(level slog.Level, msg string, err error, fields map[string]interface{}) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.LogAttrs(ctx, level, msg, attrs(err, fields)...)
}

// attrs converts a field map into attributes in key order.
func attrs(err error, fields map[string]interface{}) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slog.Attr, 0, len(keys)+1)
	if err != nil {
		out = append(out, slog.String("error", err.Error()))
	}
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	str = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
	return str
}

func isSystemdService() bool {
	cgroupPath, err := getCgroupPath()
	if err != nil {
		return false
	}
	return strings.HasSuffix(cgroupPath, ".service") ||
		strings.HasSuffix(path.Dir(cgroupPath), ".service")
}

func getCgroupPath() (string, error) {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) >= 3 {
		return parts[len(parts)-1], nil
	}
	return "", nil
}
