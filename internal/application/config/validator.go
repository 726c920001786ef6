package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doeshing/autopilot/internal/domain"
)

// Validate ensures config structure is consistent.
func Validate(cfg domain.Config) error {
	if len(cfg.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	defaultModel := cfg.Engine.DefaultModel
	if defaultModel == "" {
		defaultModel = cfg.Models[0].Name
	}
	if _, ok := findModel(cfg, defaultModel); !ok {
		return fmt.Errorf("default model %s not found in models list", defaultModel)
	}
	if err := validateModels(cfg.Models); err != nil {
		return err
	}
	if err := validateEngine(cfg.Engine); err != nil {
		return err
	}
	if cfg.Budget.DailyLimit <= 0 {
		return fmt.Errorf("budget.daily_limit must be > 0")
	}
	if err := validateExecution(cfg.Execution); err != nil {
		return err
	}
	if err := validateMemory(cfg.Memory); err != nil {
		return err
	}
	if cfg.Prompt.MaxChars <= 0 {
		return fmt.Errorf("prompt.max_chars must be > 0")
	}
	if cfg.Human.TimeoutSeconds < 0 {
		return fmt.Errorf("human.timeout_seconds must be >= 0")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug|info|warn|error, got %s", cfg.Logging.Level)
	}
	return nil
}

func validateModels(models []domain.ModelDefinition) error {
	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model.Name == "" {
			return errors.New("every model needs a name")
		}
		if seen[model.Name] {
			return fmt.Errorf("model %s declared twice", model.Name)
		}
		seen[model.Name] = true
		if model.InputCostPer1K < 0 || model.OutputCostPer1K < 0 {
			return fmt.Errorf("model %s: cost rates must be >= 0", model.Name)
		}
		if model.Temperature < 0 || model.Temperature > 2 {
			return fmt.Errorf("model %s: temperature must be within [0, 2]", model.Name)
		}
	}
	return nil
}

func validateEngine(engine domain.EngineSettings) error {
	if strings.TrimSpace(engine.StateDir) == "" {
		return fmt.Errorf("engine.state_dir must be set")
	}
	if engine.CycleIntervalSeconds < 0 {
		return fmt.Errorf("engine.cycle_interval_seconds must be >= 0")
	}
	if engine.ErrorBackoffSeconds < 0 {
		return fmt.Errorf("engine.error_backoff_seconds must be >= 0")
	}
	if engine.MaxInstances <= 0 {
		return fmt.Errorf("engine.max_instances must be > 0")
	}
	return nil
}

func validateExecution(exec domain.ExecutionSettings) error {
	if exec.TimeoutSeconds <= 0 {
		return fmt.Errorf("execution.timeout_seconds must be > 0")
	}
	if exec.OutputLimit <= 0 {
		return fmt.Errorf("execution.output_limit must be > 0")
	}
	if exec.OutputMargin < 0 {
		return fmt.Errorf("execution.output_margin must be >= 0")
	}
	return nil
}

func validateMemory(mem domain.MemorySettings) error {
	if mem.DescriptionTail <= 0 || mem.NotesTail <= 0 {
		return fmt.Errorf("memory tails must be > 0")
	}
	if mem.DescriptionEvery <= 0 {
		return fmt.Errorf("memory.description_every must be > 0")
	}
	if mem.NotesMaxChars <= 0 {
		return fmt.Errorf("memory.notes_max_chars must be > 0")
	}
	return nil
}

func findModel(cfg domain.Config, name string) (domain.ModelDefinition, bool) {
	for _, model := range cfg.Models {
		if model.Name == name {
			return model, true
		}
	}
	return domain.ModelDefinition{}, false
}
