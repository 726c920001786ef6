// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the cycle engine and external
// adapters (infrastructure). The application core depends on these abstractions,
// never on concrete shells, filesystems or HTTP clients.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., Provider, CycleStore)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.autopilot/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ProviderFactory builds generation backends based on model definitions.
type ProviderFactory interface {
	ForModel(domain.ModelDefinition) (Provider, error)
}

// Provider is the paid generation backend.
type Provider interface {
	Name() string
	Model() domain.ModelDefinition
	Generate(context.Context, ProviderRequest) (ProviderResponse, error)
}

// ProviderRequest contains one system/user exchange and its sampling parameters.
type ProviderRequest struct {
	System      string
	User        string
	Temperature float64
	JSON        bool
}

// ProviderResponse holds the generated text and token usage when the backend reports it.
type ProviderResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// CommandExecutor runs shell commands and reports bounded outcomes.
// Command failures and timeouts are data in the report, never errors.
type CommandExecutor interface {
	Run(ctx context.Context, command string) domain.CommandOutcome
	RunMany(ctx context.Context, commands []string) domain.ExecutionReport
}

// CycleStore persists one directory per cycle.
type CycleStore interface {
	LatestCycleID() (int, error)
	CreateCycleDir(id int) (CycleHandle, error)
	Open(id int) (CycleHandle, bool)
	Write(h CycleHandle, name string, content []byte) error
	Read(h CycleHandle, name string) ([]byte, bool, error)
	WaitForHumanResult(ctx context.Context, h CycleHandle) (string, error)
}

// CycleHandle addresses one cycle directory.
type CycleHandle struct {
	ID   int
	Path string
}

// MemoryLog is an append-only text log with an in-memory copy of its content.
type MemoryLog interface {
	Name() string
	Append(text string) error
	Content() string
	Tail(maxChars int) string
	Len() int
	Replace(content string) error
}

// Summarizer condenses log content through the generation backend.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, text string) (string, error)
}

// CycleLedger records the outcome of every cycle.
type CycleLedger interface {
	Append(domain.CycleRecord) error
	Records(limit int, search string) ([]domain.CycleRecord, error)
	SpentSince(since time.Time) (float64, error)
}

// EnvironmentCollector describes the machine the engine runs on.
type EnvironmentCollector interface {
	Collect(context.Context) (domain.EnvironmentSnapshot, error)
}

// ObjectiveSource supplies the standing objective text, empty when none is set.
type ObjectiveSource interface {
	Objective() (string, error)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, journal).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
