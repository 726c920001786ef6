package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/pkg/filesystem"
	"github.com/doeshing/autopilot/internal/ports"
)

// EnvPrefix namespaces environment overrides, e.g. AUTOPILOT_BUDGET_DAILY_LIMIT.
const EnvPrefix = "AUTOPILOT"

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "AUTOPILOT_CONFIG"

const defaultInitialPrompt = "Your first task should be to install this program as a service and set it to start on reboot. " +
	"Then review your own configuration for cost efficiencies. You then have free choice on how to pursue the objective."

// FileLoader loads YAML configuration from ~/.autopilot/config.yaml (overridable via AUTOPILOT_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Path reports the file Load reads.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

// Load implements ports.ConfigProvider. A missing file is created with defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return domain.Config{}, fmt.Errorf("write default config: %w", err)
		}
	} else if err != nil {
		return domain.Config{}, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return domain.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return hydrateDefaults(cfg), nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv(ConfigEnvVar); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".autopilot", "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("config_format_version", d.ConfigFormatVersion)
	v.SetDefault("engine.state_dir", d.Engine.StateDir)
	v.SetDefault("engine.objective_file", d.Engine.ObjectiveFile)
	v.SetDefault("engine.initial_prompt", d.Engine.InitialPrompt)
	v.SetDefault("engine.cycle_interval_seconds", d.Engine.CycleIntervalSeconds)
	v.SetDefault("engine.error_backoff_seconds", d.Engine.ErrorBackoffSeconds)
	v.SetDefault("engine.max_instances", d.Engine.MaxInstances)
	v.SetDefault("budget.daily_limit", d.Budget.DailyLimit)
	v.SetDefault("budget.restore_from_history", d.Budget.RestoreFromHistory)
	v.SetDefault("execution.shell", d.Execution.Shell)
	v.SetDefault("execution.timeout_seconds", d.Execution.TimeoutSeconds)
	v.SetDefault("execution.output_limit", d.Execution.OutputLimit)
	v.SetDefault("execution.output_margin", d.Execution.OutputMargin)
	v.SetDefault("memory.description_tail", d.Memory.DescriptionTail)
	v.SetDefault("memory.notes_tail", d.Memory.NotesTail)
	v.SetDefault("memory.description_every", d.Memory.DescriptionEvery)
	v.SetDefault("memory.notes_max_chars", d.Memory.NotesMaxChars)
	v.SetDefault("prompt.max_chars", d.Prompt.MaxChars)
	v.SetDefault("prompt.environment_keys", d.Prompt.EnvironmentKeys)
	v.SetDefault("human.poll_interval_seconds", d.Human.PollIntervalSeconds)
	v.SetDefault("human.timeout_seconds", d.Human.TimeoutSeconds)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.journal", d.Logging.Journal)
	return v
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, domain.DirectoryPermissions)
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	raw, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := ensureConfigDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

// Marshal renders a config as YAML.
func Marshal(cfg domain.Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// DefaultConfig is the configuration written on first run.
func DefaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Engine: domain.EngineSettings{
			StateDir:             "~/.autopilot/state",
			ObjectiveFile:        "~/.autopilot/objective.md",
			InitialPrompt:        defaultInitialPrompt,
			DefaultModel:         "gpt-4-turbo",
			CycleIntervalSeconds: int(domain.DefaultCycleInterval.Seconds()),
			ErrorBackoffSeconds:  int(domain.DefaultErrorBackoff.Seconds()),
			MaxInstances:         domain.DefaultMaxInstances,
		},
		Budget: domain.BudgetSettings{
			DailyLimit:         domain.DefaultDailyBudget,
			RestoreFromHistory: true,
		},
		Models: []domain.ModelDefinition{
			{
				Name:            "gpt-4-turbo",
				Endpoint:        "https://api.openai.com/v1/chat/completions",
				AuthEnvVar:      "OPENAI_API_KEY",
				ModelID:         "gpt-4-1106-preview",
				Temperature:     domain.DefaultTemperature,
				InputCostPer1K:  0.01,
				OutputCostPer1K: 0.03,
			},
		},
		Execution: domain.ExecutionSettings{
			Shell:          "/bin/sh",
			TimeoutSeconds: int(domain.DefaultCommandTimeout.Seconds()),
			OutputLimit:    domain.DefaultOutputLimit,
			OutputMargin:   domain.DefaultOutputMargin,
		},
		Memory: domain.MemorySettings{
			DescriptionTail:  domain.DefaultDescriptionTail,
			NotesTail:        domain.DefaultNotesTail,
			DescriptionEvery: domain.DefaultDescriptionEvery,
			NotesMaxChars:    domain.DefaultNotesMaxChars,
		},
		Prompt: domain.PromptSettings{
			MaxChars:        domain.DefaultPromptMaxChars,
			EnvironmentKeys: []string{"PATH", "LANG"},
		},
		Human: domain.HumanSettings{
			PollIntervalSeconds: int(domain.DefaultHumanPollInterval.Seconds()),
		},
		Logging: domain.LoggingSettings{
			Level:   "info",
			Journal: true,
		},
	}
}

// ResolvedDefaults is DefaultConfig as Load would return it.
func ResolvedDefaults() domain.Config {
	return hydrateDefaults(DefaultConfig())
}

// hydrateDefaults resolves paths and fills values that must not be zero.
func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.Engine.DefaultModel == "" && len(cfg.Models) > 0 {
		cfg.Engine.DefaultModel = cfg.Models[0].Name
	}
	cfg.Engine.StateDir = filesystem.ExpandPath(cfg.Engine.StateDir)
	cfg.Engine.ObjectiveFile = filesystem.ExpandPath(cfg.Engine.ObjectiveFile)
	if cfg.Execution.Shell == "" {
		cfg.Execution.Shell = "/bin/sh"
	}
	if cfg.Human.PollIntervalSeconds <= 0 {
		cfg.Human.PollIntervalSeconds = int(domain.DefaultHumanPollInterval.Seconds())
	}
	for i := range cfg.Models {
		if cfg.Models[i].Temperature == 0 {
			cfg.Models[i].Temperature = domain.DefaultTemperature
		}
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
