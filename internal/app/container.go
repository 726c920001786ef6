package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/autopilot/internal/application/budget"
	appconfig "github.com/doeshing/autopilot/internal/application/config"
	"github.com/doeshing/autopilot/internal/application/cycle"
	"github.com/doeshing/autopilot/internal/application/doctor"
	appmemory "github.com/doeshing/autopilot/internal/application/memory"
	"github.com/doeshing/autopilot/internal/application/prompt"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/infrastructure/ai"
	"github.com/doeshing/autopilot/internal/infrastructure/config"
	contextcollector "github.com/doeshing/autopilot/internal/infrastructure/context"
	"github.com/doeshing/autopilot/internal/infrastructure/cyclestore"
	"github.com/doeshing/autopilot/internal/infrastructure/executor"
	"github.com/doeshing/autopilot/internal/infrastructure/history"
	"github.com/doeshing/autopilot/internal/infrastructure/instance"
	"github.com/doeshing/autopilot/internal/infrastructure/memory"
	"github.com/doeshing/autopilot/internal/infrastructure/objective"
	"github.com/doeshing/autopilot/internal/pkg/logger"
)

// environmentTTL is how long a collected environment snapshot is reused.
const environmentTTL = 10 * time.Minute

// Options selects the config file and verbosity.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// Container holds what the read-only commands need: the config, a console
// logger and the diagnostics service.
type Container struct {
	ConfigLoader  *config.FileLoader
	Config        domain.Config
	Logger        *logger.Logger
	DoctorService *doctor.Service
	verbose       bool
}

// BuildContainer loads the configuration and wires the light dependencies.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewStd(opts.Verbose)
	if !opts.Verbose {
		log.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}

	doctorService := &doctor.Service{
		ConfigProvider:   cfgLoader,
		ContextCollector: contextcollector.NewBasicCollector(cfg.Execution.Shell, cfg.Prompt.EnvironmentKeys),
		Slots:            instance.Occupied,
		KindOf:           ai.ResolveKind,
	}

	return &Container{
		ConfigLoader:  cfgLoader,
		Config:        cfg,
		Logger:        log,
		DoctorService: doctorService,
		verbose:       opts.Verbose,
	}, nil
}

// StateRoot is the state directory of the given instance slot.
func (c *Container) StateRoot(slot int) string {
	return instance.StateRoot(c.Config.Engine.StateDir, slot)
}

// CycleStore opens the cycle directories of a slot without claiming it.
func (c *Container) CycleStore(slot int) *cyclestore.FSStore {
	return cyclestore.NewFSStore(filepath.Join(c.StateRoot(slot), domain.CyclesDirName), cyclestore.Options{
		PollInterval: time.Duration(c.Config.Human.PollIntervalSeconds) * time.Second,
		Logger:       c.Logger,
	})
}

// History opens the ledger of a slot. Callers close it.
func (c *Container) History(slot int) history.Store {
	return history.Open(c.StateRoot(slot))
}

// EngineOptions tunes one engine run.
type EngineOptions struct {
	Model string
	Once  bool
}

// Engine is a running instance: its slot, its loop and everything it must release.
type Engine struct {
	RunID        string
	Slot         *instance.Slot
	Model        domain.ModelDefinition
	Orchestrator *cycle.Orchestrator
	Loop         *cycle.Loop
	Governor     *budget.Governor
	Logger       *logger.Logger
	ledger       history.Store
}

// Run drives the loop until exit, cancellation or failure.
func (e *Engine) Run(ctx context.Context) error {
	return e.Loop.Run(ctx)
}

// Close releases the ledger, the log file and the instance slot.
func (e *Engine) Close() error {
	var errs []error
	if e.ledger != nil {
		errs = append(errs, e.ledger.Close())
	}
	if e.Logger != nil {
		errs = append(errs, e.Logger.Close())
	}
	errs = append(errs, e.Slot.Release())
	return errors.Join(errs...)
}

// BuildEngine claims an instance slot and wires the cycle engine.
func (c *Container) BuildEngine(ctx context.Context, opts EngineOptions) (eng *Engine, err error) {
	cfg := c.Config
	if err := appconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	model, err := cfg.SelectModel(opts.Model)
	if err != nil {
		return nil, err
	}

	slot, err := instance.NewProbe().Acquire(cfg.Engine.StateDir, cfg.Engine.MaxInstances)
	if err != nil {
		return nil, err
	}
	eng = &Engine{RunID: uuid.NewString(), Slot: slot, Model: model}
	defer func() {
		if err != nil {
			_ = eng.Close()
			eng = nil
		}
	}()

	root := slot.StateRoot
	if err := os.MkdirAll(root, domain.DirectoryPermissions); err != nil {
		return eng, err
	}

	log, err := logger.New(logger.Options{
		Level:    cfg.Logging.Level,
		Verbose:  c.verbose,
		FilePath: filepath.Join(root, domain.ResponseLogName),
		Journal:  cfg.Logging.Journal,
	})
	if err != nil {
		return eng, err
	}
	eng.Logger = log

	provider, err := ai.NewFactory().ForModel(model)
	if err != nil {
		return eng, err
	}

	governor := budget.NewGovernor(cfg.Budget.DailyLimit, model.Pricing(), time.Now)
	eng.Governor = governor

	ledger := history.Open(root)
	eng.ledger = ledger
	if cfg.Budget.RestoreFromHistory {
		spent, err := ledger.SpentSince(budget.StartOfDay(time.Now()))
		if err != nil {
			log.Warn("budget restore failed", map[string]interface{}{"error": err.Error()})
		} else if spent > 0 {
			governor.Restore(spent)
			log.Info("budget restored from ledger", map[string]interface{}{"spent_today": spent})
		}
	}

	descriptions, err := memory.OpenFileLog(appmemory.Descriptions, filepath.Join(root, domain.DescriptionLogName))
	if err != nil {
		return eng, err
	}
	notes, err := memory.OpenFileLog(appmemory.Notes, filepath.Join(root, domain.NotesLogName))
	if err != nil {
		return eng, err
	}

	summarizer, err := appmemory.NewGenerationSummarizer(provider, governor)
	if err != nil {
		return eng, err
	}
	compactor, err := appmemory.NewCompactor(summarizer, log, descriptions, notes, cfg.Memory.DescriptionEvery, cfg.Memory.NotesMaxChars)
	if err != nil {
		return eng, err
	}

	collector := contextcollector.NewCachedCollector(
		contextcollector.NewBasicCollector(cfg.Execution.Shell, cfg.Prompt.EnvironmentKeys),
		environmentTTL,
	)
	assembler, err := prompt.NewAssembler(compactor, objective.NewFileSource(cfg.Engine.ObjectiveFile), collector, log, prompt.Options{
		MaxChars:        cfg.Prompt.MaxChars,
		DescriptionTail: cfg.Memory.DescriptionTail,
		NotesTail:       cfg.Memory.NotesTail,
	})
	if err != nil {
		return eng, err
	}

	exec := executor.NewLocalExecutor(executor.Options{
		Shell:        cfg.Execution.Shell,
		Timeout:      time.Duration(cfg.Execution.TimeoutSeconds) * time.Second,
		OutputLimit:  cfg.Execution.OutputLimit,
		OutputMargin: cfg.Execution.OutputMargin,
	})
	store := cyclestore.NewFSStore(filepath.Join(root, domain.CyclesDirName), cyclestore.Options{
		PollInterval: time.Duration(cfg.Human.PollIntervalSeconds) * time.Second,
		Logger:       log,
	})

	orchestrator, err := cycle.NewOrchestrator(cycle.Dependencies{
		Provider:  provider,
		Assembler: assembler,
		Executor:  exec,
		Store:     store,
		Memory:    compactor,
		Governor:  governor,
		Ledger:    ledger,
		Logger:    log,
	}, cycle.Options{
		RunID:        eng.RunID,
		HumanTimeout: time.Duration(cfg.Human.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return eng, err
	}
	if err := orchestrator.Resume(cfg.Engine.InitialPrompt); err != nil {
		return eng, fmt.Errorf("resume: %w", err)
	}
	eng.Orchestrator = orchestrator

	loopOpts := cycle.LoopOptions{
		Interval: time.Duration(cfg.Engine.CycleIntervalSeconds) * time.Second,
		Backoff:  time.Duration(cfg.Engine.ErrorBackoffSeconds) * time.Second,
	}
	if opts.Once {
		loopOpts.MaxCycles = 1
	}
	eng.Loop = cycle.NewLoop(orchestrator, log, loopOpts)

	log.Info("engine ready", map[string]interface{}{
		"run_id":     eng.RunID,
		"slot":       slot.Index,
		"state_root": root,
		"model":      model.Name,
		"cycle":      orchestrator.CycleID(),
	})
	return eng, nil
}
