// Package cycle runs the generate, parse, act loop of the engine.
package cycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/autopilot/internal/application/budget"
	"github.com/doeshing/autopilot/internal/application/directive"
	"github.com/doeshing/autopilot/internal/application/memory"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// PromptBuilder assembles the prompt of a cycle.
type PromptBuilder interface {
	Build(ctx context.Context, dynamicInput string, cycleID int) (domain.Prompt, error)
}

// MemoryRecorder appends to the rolling logs and compacts them when due.
type MemoryRecorder interface {
	Record(ctx context.Context, name, text string, cycleID int) (bool, error)
}

// Dependencies of an Orchestrator. Ledger is optional.
type Dependencies struct {
	Provider  ports.Provider
	Assembler PromptBuilder
	Executor  ports.CommandExecutor
	Store     ports.CycleStore
	Memory    MemoryRecorder
	Governor  *budget.Governor
	Ledger    ports.CycleLedger
	Logger    ports.Logger
	Sleeper   Sleeper
	Now       func() time.Time
}

// Options tune an Orchestrator.
type Options struct {
	RunID string
	// HumanTimeout bounds an operator wait; zero waits forever.
	HumanTimeout time.Duration
}

// Orchestrator owns the cycle counter, the budget and the dynamic input.
// It is driven by a single goroutine.
type Orchestrator struct {
	deps    Dependencies
	opts    Options
	cycleID int
	input   string
	pending *ports.CycleHandle
}

// NewOrchestrator validates dependencies.
func NewOrchestrator(deps Dependencies, opts Options) (*Orchestrator, error) {
	if deps.Provider == nil || deps.Assembler == nil || deps.Executor == nil || deps.Store == nil ||
		deps.Memory == nil || deps.Governor == nil || deps.Logger == nil {
		return nil, errors.New("cycle.Orchestrator dependencies not satisfied")
	}
	if deps.Sleeper == nil {
		deps.Sleeper = TimerSleeper{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// CycleID is the id of the last committed cycle.
func (o *Orchestrator) CycleID() int {
	return o.cycleID
}

// Input is the dynamic input the next cycle will start from.
func (o *Orchestrator) Input() string {
	return o.input
}

// SetInput replaces the dynamic input of the next cycle.
func (o *Orchestrator) SetInput(input string) {
	o.input = input
}

// Resume derives the cycle counter from the store and rebuilds the dynamic input
// from the newest cycle that emitted a prompt. initialPrompt seeds a fresh store.
func (o *Orchestrator) Resume(initialPrompt string) error {
	latest, err := o.deps.Store.LatestCycleID()
	if err != nil {
		return err
	}
	o.cycleID = latest

	for id := latest; id > 0; id-- {
		h, ok := o.deps.Store.Open(id)
		if !ok {
			continue
		}
		next, ok, err := o.deps.Store.Read(h, domain.PromptFile)
		if err != nil {
			return fmt.Errorf("resume cycle %d: %w", id, err)
		}
		if !ok {
			continue
		}
		in, pending, err := o.restoreInput(h, string(next))
		if err != nil {
			return fmt.Errorf("resume cycle %d: %w", id, err)
		}
		if o.input, err = in.Encode(); err != nil {
			return err
		}
		if pending {
			o.pending = &h
		}
		o.deps.Logger.Info("resuming", map[string]interface{}{"cycle": id, "latest": latest, "awaiting_operator": pending})
		return nil
	}

	in := domain.DynamicInput{NextPrompt: initialPrompt}
	o.input, err = in.Encode()
	o.deps.Logger.Info("starting fresh", map[string]interface{}{"latest": latest})
	return err
}

func (o *Orchestrator) restoreInput(h ports.CycleHandle, next string) (domain.DynamicInput, bool, error) {
	in := domain.DynamicInput{NextPrompt: next}

	var parts []string
	if data, ok, err := o.deps.Store.Read(h, domain.ResultsFile); err != nil {
		return in, false, err
	} else if ok {
		var results struct {
			Result string `json:"result"`
		}
		if err := json.Unmarshal(data, &results); err == nil && results.Result != "" {
			parts = append(parts, results.Result)
		}
	}

	pending := false
	if _, asked, err := o.deps.Store.Read(h, domain.AskFile); err != nil {
		return in, false, err
	} else if asked {
		answer, answered, err := o.deps.Store.Read(h, domain.HumanResultFile)
		if err != nil {
			return in, false, err
		}
		if answered {
			parts = append(parts, humanResult(string(answer)))
		} else {
			pending = true
		}
	}
	in.Result = strings.Join(parts, "\n")

	if data, ok, err := o.deps.Store.Read(h, domain.FilesFile); err != nil {
		return in, false, err
	} else if ok {
		var files []string
		if err := json.Unmarshal(data, &files); err == nil && len(files) > 0 {
			in.FilesNeeded = files
		}
	}
	return in, pending, nil
}

// RunCycle executes one cycle. A failure before the directive is decoded
// releases the cycle id and leaves no cycle directory, so the next attempt
// reuses the id, also across restarts.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if o.pending != nil {
		if err := o.finishPendingAsk(ctx); err != nil {
			return err
		}
	}

	if o.deps.Governor.MaybeResetForNewDay() {
		o.deps.Logger.Info("daily budget reset", map[string]interface{}{"limit": o.deps.Governor.Snapshot().DailyLimit})
	}

	o.cycleID++
	id := o.cycleID
	rec := domain.CycleRecord{
		RunID:     o.opts.RunID,
		CycleID:   id,
		StartedAt: o.deps.Now(),
		Model:     o.deps.Provider.Model().Name,
	}

	// ASSEMBLE
	p, err := o.deps.Assembler.Build(ctx, o.input, id)
	if err != nil {
		o.cycleID--
		return o.fail(rec, fmt.Errorf("assemble cycle %d: %w", id, err))
	}

	// GENERATE
	estimate := o.deps.Governor.EstimateCost(budget.EstimateTokens(p.String()))
	if !o.deps.Governor.CanAfford(estimate) {
		o.cycleID--
		snap := o.deps.Governor.Snapshot()
		return o.fail(rec, fmt.Errorf("cycle %d needs ~%.4f with %.4f of %.2f spent: %w",
			id, estimate, snap.SpentToday, snap.DailyLimit, domain.ErrBudgetExhausted))
	}
	resp, err := o.deps.Provider.Generate(ctx, ports.ProviderRequest{
		System:      p.System,
		User:        p.User,
		Temperature: o.deps.Provider.Model().Temperature,
		JSON:        true,
	})
	if err != nil {
		o.cycleID--
		return o.fail(rec, fmt.Errorf("generate cycle %d: %w", id, err))
	}
	rec.Cost = o.deps.Governor.UsageCost(resp.InputTokens, resp.OutputTokens, p.String(), resp.Text)
	o.deps.Governor.RecordSpend(rec.Cost)
	o.deps.Logger.Info("generation response", map[string]interface{}{
		"cycle":    id,
		"provider": o.deps.Provider.Name(),
		"cost":     rec.Cost,
		"response": resp.Text,
	})

	// PARSE
	d, err := directive.Parse(resp.Text)
	if err != nil {
		o.cycleID--
		return o.fail(rec, fmt.Errorf("cycle %d: %w", id, err))
	}
	rec.Description = d.Description
	rec.Commands = d.Cmd.Commands
	rec.Ask = d.Ask

	// PERSIST
	handle, err := o.deps.Store.CreateCycleDir(id)
	if err != nil {
		o.cycleID--
		return o.fail(rec, fmt.Errorf("create cycle %d: %w", id, err))
	}
	// Summaries generated during compaction are charged to this cycle's row.
	spent := o.deps.Governor.Snapshot().SpentToday
	err = o.persist(ctx, handle, d)
	rec.Cost += o.deps.Governor.Snapshot().SpentToday - spent
	if err != nil {
		return o.fail(rec, err)
	}

	// ACT
	if d.IsExit() {
		rec.Status = domain.CycleExit
		o.record(rec)
		o.deps.Logger.Warn("exit requested", map[string]interface{}{"cycle": id})
		return domain.ErrExitRequested
	}

	var results []string
	if !d.Cmd.Empty() {
		report := o.deps.Executor.RunMany(ctx, d.Cmd.Commands)
		output := report.String()
		o.deps.Logger.Info("commands executed", map[string]interface{}{
			"cycle":     id,
			"commands":  len(report.Outcomes),
			"succeeded": report.Succeeded(),
		})
		if err := o.writeJSON(handle, domain.ResultsFile, map[string]string{"result": output}); err != nil {
			return o.fail(rec, err)
		}
		results = append(results, output)
	}

	if d.Sleep > 0 {
		if err := o.deps.Sleeper.Sleep(ctx, time.Duration(d.Sleep*float64(time.Second))); err != nil {
			return o.fail(rec, err)
		}
	}

	rec.Status = domain.CycleDone
	if d.HasAsk() {
		answer, err := o.waitHuman(ctx, handle)
		if err != nil {
			return o.fail(rec, err)
		}
		results = append(results, humanResult(answer))
		rec.Status = domain.CycleHuman
	}

	next := domain.DynamicInput{
		Result:      strings.Join(results, "\n"),
		NextPrompt:  d.Prompt,
		FilesNeeded: d.FilesNeeded,
	}
	if o.input, err = next.Encode(); err != nil {
		return o.fail(rec, err)
	}
	o.record(rec)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, h ports.CycleHandle, d domain.Directive) error {
	if err := o.deps.Store.Write(h, domain.PromptFile, []byte(d.Prompt)); err != nil {
		return err
	}
	files := d.FilesNeeded
	if files == nil {
		files = []string{}
	}
	if err := o.writeJSON(h, domain.FilesFile, files); err != nil {
		return err
	}
	if !d.Cmd.Empty() {
		if err := o.writeJSON(h, domain.CommandFile, map[string]interface{}{"command": d.Cmd}); err != nil {
			return err
		}
	}
	if d.HasAsk() {
		if err := o.writeJSON(h, domain.AskFile, map[string]string{"task": d.Ask}); err != nil {
			return err
		}
	}

	if _, err := o.deps.Memory.Record(ctx, memory.Descriptions, d.Description, h.ID); err != nil {
		o.deps.Logger.Error("append description", err, map[string]interface{}{"cycle": h.ID})
	}
	if _, err := o.deps.Memory.Record(ctx, memory.Notes, d.Notes, h.ID); err != nil {
		o.deps.Logger.Error("append notes", err, map[string]interface{}{"cycle": h.ID})
	}
	return nil
}

func (o *Orchestrator) waitHuman(ctx context.Context, h ports.CycleHandle) (string, error) {
	o.deps.Logger.Warn("waiting for operator", map[string]interface{}{
		"cycle":  h.ID,
		"answer": h.Path + "/" + domain.HumanResultFile,
	})
	if o.opts.HumanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.HumanTimeout)
		defer cancel()
	}
	answer, err := o.deps.Store.WaitForHumanResult(ctx, h)
	if err != nil {
		return "", fmt.Errorf("wait for operator on cycle %d: %w", h.ID, err)
	}
	o.deps.Logger.Info("operator answered", map[string]interface{}{"cycle": h.ID, "chars": len(answer)})
	return answer, nil
}

// finishPendingAsk completes an operator wait interrupted by a restart.
func (o *Orchestrator) finishPendingAsk(ctx context.Context) error {
	answer, err := o.waitHuman(ctx, *o.pending)
	if err != nil {
		return err
	}
	o.pending = nil
	in, ok := domain.DecodeDynamicInput(o.input)
	if !ok {
		in = domain.DynamicInput{NextPrompt: o.input}
	}
	if in.Result != "" {
		in.Result += "\n"
	}
	in.Result += humanResult(answer)
	o.input, err = in.Encode()
	return err
}

func (o *Orchestrator) writeJSON(h ports.CycleHandle, name string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return o.deps.Store.Write(h, name, buf.Bytes())
}

func (o *Orchestrator) fail(rec domain.CycleRecord, err error) error {
	rec.Status = domain.CycleFailed
	rec.Error = err.Error()
	o.record(rec)
	return err
}

func (o *Orchestrator) record(rec domain.CycleRecord) {
	if o.deps.Ledger == nil {
		return
	}
	rec.FinishedAt = o.deps.Now()
	if err := o.deps.Ledger.Append(rec); err != nil {
		o.deps.Logger.Warn("append cycle ledger", map[string]interface{}{"cycle": rec.CycleID, "error": err.Error()})
	}
}

func humanResult(answer string) string {
	return domain.HumanMarker + "\n" + strings.TrimRight(answer, "\n")
}
