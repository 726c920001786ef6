package domain

// Config mirrors ~/.autopilot/config.yaml.
type Config struct {
	ConfigFormatVersion string            `yaml:"config_format_version" mapstructure:"config_format_version"`
	Engine              EngineSettings    `yaml:"engine" mapstructure:"engine"`
	Budget              BudgetSettings    `yaml:"budget" mapstructure:"budget"`
	Models              []ModelDefinition `yaml:"models" mapstructure:"models"`
	Execution           ExecutionSettings `yaml:"execution" mapstructure:"execution"`
	Memory              MemorySettings    `yaml:"memory" mapstructure:"memory"`
	Prompt              PromptSettings    `yaml:"prompt" mapstructure:"prompt"`
	Human               HumanSettings     `yaml:"human" mapstructure:"human"`
	Logging             LoggingSettings   `yaml:"logging" mapstructure:"logging"`
}

// EngineSettings controls the outer cycle loop.
type EngineSettings struct {
	StateDir             string `yaml:"state_dir" mapstructure:"state_dir"`
	ObjectiveFile        string `yaml:"objective_file" mapstructure:"objective_file"`
	InitialPrompt        string `yaml:"initial_prompt" mapstructure:"initial_prompt"`
	DefaultModel         string `yaml:"default_model" mapstructure:"default_model"`
	CycleIntervalSeconds int    `yaml:"cycle_interval_seconds" mapstructure:"cycle_interval_seconds"`
	ErrorBackoffSeconds  int    `yaml:"error_backoff_seconds" mapstructure:"error_backoff_seconds"`
	MaxInstances         int    `yaml:"max_instances" mapstructure:"max_instances"`
}

// BudgetSettings caps daily generation spend.
type BudgetSettings struct {
	DailyLimit         float64 `yaml:"daily_limit" mapstructure:"daily_limit"`
	RestoreFromHistory bool    `yaml:"restore_from_history" mapstructure:"restore_from_history"`
}

// ExecutionSettings controls how commands run.
type ExecutionSettings struct {
	Shell          string `yaml:"shell" mapstructure:"shell"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	OutputLimit    int    `yaml:"output_limit" mapstructure:"output_limit"`
	OutputMargin   int    `yaml:"output_margin" mapstructure:"output_margin"`
}

// MemorySettings configures the rolling description and notes logs.
type MemorySettings struct {
	DescriptionTail  int `yaml:"description_tail" mapstructure:"description_tail"`
	NotesTail        int `yaml:"notes_tail" mapstructure:"notes_tail"`
	DescriptionEvery int `yaml:"description_every" mapstructure:"description_every"`
	NotesMaxChars    int `yaml:"notes_max_chars" mapstructure:"notes_max_chars"`
}

// PromptSettings bounds prompt assembly.
type PromptSettings struct {
	MaxChars        int      `yaml:"max_chars" mapstructure:"max_chars"`
	EnvironmentKeys []string `yaml:"environment_keys" mapstructure:"environment_keys"`
}

// HumanSettings configures operator escalation. TimeoutSeconds of zero waits forever.
type HumanSettings struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	TimeoutSeconds      int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingSettings selects log verbosity and sinks.
type LoggingSettings struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Journal bool   `yaml:"journal" mapstructure:"journal"`
}
