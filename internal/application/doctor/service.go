package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	appconfig "github.com/doeshing/autopilot/internal/application/config"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider   ports.ConfigProvider
	ContextCollector ports.EnvironmentCollector
	Ledger           ports.CycleLedger
	// Slots reports slot indexes held by live engines.
	Slots func(stateDir string, max int) []int
	// KindOf maps a model to its provider family.
	KindOf func(domain.ModelDefinition) domain.ProviderKind
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	if s.ConfigProvider == nil {
		return domain.HealthReport{}, errors.New("doctor.Service dependencies not satisfied")
	}
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("format %s, %d model(s)", cfg.ConfigFormatVersion, len(cfg.Models))))
	}

	checks = append(checks, s.apiCheck(cfg))
	checks = append(checks, shellCheck(cfg.Execution.Shell))
	checks = append(checks, writableCheck(cfg.Engine.StateDir))
	checks = append(checks, objectiveCheck(cfg.Engine.ObjectiveFile))

	if s.Slots != nil {
		held := s.Slots(cfg.Engine.StateDir, cfg.Engine.MaxInstances)
		if len(held) >= cfg.Engine.MaxInstances {
			checks = append(checks, fail("Instance slots", fmt.Sprintf("all %d slots held", cfg.Engine.MaxInstances)))
		} else {
			checks = append(checks, ok("Instance slots", fmt.Sprintf("%d of %d in use", len(held), cfg.Engine.MaxInstances)))
		}
	}

	if s.ContextCollector != nil {
		if snapshot, err := s.ContextCollector.Collect(ctx); err == nil {
			checks = append(checks, ok("Context collector", fmt.Sprintf("detected tools: %d", len(snapshot.AvailableTools))))
		} else {
			checks = append(checks, warn("Context collector", err.Error()))
		}
	}

	if s.Ledger != nil {
		if _, err := s.Ledger.Records(1, ""); err != nil {
			checks = append(checks, fail("Cycle ledger", err.Error()))
		} else {
			checks = append(checks, ok("Cycle ledger", "reachable"))
		}
	}

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) apiCheck(cfg domain.Config) domain.HealthCheck {
	model, err := cfg.GetDefaultModel()
	if err != nil {
		return fail("API key", err.Error())
	}
	kind := domain.ProviderKindUnknown
	if s.KindOf != nil {
		kind = s.KindOf(model)
	}
	var fallback string
	switch kind {
	case domain.ProviderKindAnthropic:
		fallback = "ANTHROPIC_API_KEY"
	case domain.ProviderKindOpenAI:
		fallback = "OPENAI_API_KEY"
	case domain.ProviderKindGemini:
		fallback = "GEMINI_API_KEY"
	case domain.ProviderKindOllama:
		return ok("API key", fmt.Sprintf("%s needs no key", model.Name))
	default:
		return warn("API key", fmt.Sprintf("%s: unknown provider for %s", model.Name, model.Endpoint))
	}
	if envMissing(model.AuthEnvVar, fallback) {
		name := model.AuthEnvVar
		if name == "" {
			name = fallback
		}
		return fail("API key", fmt.Sprintf("%s missing for %s", name, model.Name))
	}
	return ok("API key", fmt.Sprintf("detected for %s", model.Name))
}

func shellCheck(shell string) domain.HealthCheck {
	if shell == "" {
		shell = "/bin/sh"
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		return fail("Shell", fmt.Sprintf("%s not found", shell))
	}
	return ok("Shell", path)
}

func writableCheck(dir string) domain.HealthCheck {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return fail("State root", err.Error())
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fail("State root", fmt.Sprintf("%s not writable: %v", dir, err))
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return ok("State root", dir)
}

func objectiveCheck(path string) domain.HealthCheck {
	if path == "" {
		return warn("Objective", "no objective file configured")
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return warn("Objective", fmt.Sprintf("%s does not exist", filepath.Clean(path)))
	case err != nil:
		return fail("Objective", err.Error())
	case len(raw) == 0:
		return warn("Objective", fmt.Sprintf("%s is empty", path))
	}
	return ok("Objective", fmt.Sprintf("%s (%d bytes)", path, len(raw)))
}

func envMissing(primary, fallback string) bool {
	if primary != "" && os.Getenv(primary) != "" {
		return false
	}
	if fallback != "" && os.Getenv(fallback) != "" {
		return false
	}
	return true
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
