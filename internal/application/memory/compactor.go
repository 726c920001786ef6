// Package memory keeps the rolling description and notes logs bounded.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doeshing/autopilot/internal/ports"
)

// Log names.
const (
	Descriptions = "descriptions"
	Notes        = "notes"
)

const (
	descriptionInstruction = "You maintain the action log of an autonomous operator running on a server. " +
		"Summarize the following log into a compact chronological account. Keep every fact needed to continue the work: " +
		"what was installed or changed, what failed, and what is still pending. Reply with plain text only."
	notesInstruction = "You maintain the notes of an autonomous operator running on a server. " +
		"Condense the following notes without dropping any fact, path, port, account name or decision. " +
		"Merge duplicates and remove obsolete entries. Reply with plain text only."
)

// Trigger decides whether a log is due for compaction.
type Trigger interface {
	Due(log ports.MemoryLog, cycleID int) bool
}

// CadenceTrigger fires on every Every-th cycle.
type CadenceTrigger struct {
	Every int
}

func (t CadenceTrigger) Due(log ports.MemoryLog, cycleID int) bool {
	return t.Every > 0 && cycleID > 0 && cycleID%t.Every == 0 && log.Len() > 0
}

// SizeTrigger fires once a log grows beyond MaxChars characters.
type SizeTrigger struct {
	MaxChars int
}

func (t SizeTrigger) Due(log ports.MemoryLog, _ int) bool {
	return t.MaxChars > 0 && log.Len() > t.MaxChars
}

// Policy binds a log to its compaction trigger and summarization instruction.
type Policy struct {
	Log         ports.MemoryLog
	Trigger     Trigger
	Instruction string
}

// Compactor appends to registered logs and replaces them with summaries when due.
type Compactor struct {
	Summarizer ports.Summarizer
	Logger     ports.Logger
	policies   map[string]Policy
}

// NewCompactor builds a compactor with the standard description and notes policies.
func NewCompactor(summarizer ports.Summarizer, logger ports.Logger, descriptions, notes ports.MemoryLog, every, maxChars int) (*Compactor, error) {
	if summarizer == nil || logger == nil || descriptions == nil || notes == nil {
		return nil, errors.New("memory.Compactor dependencies not satisfied")
	}
	c := &Compactor{
		Summarizer: summarizer,
		Logger:     logger,
		policies:   map[string]Policy{},
	}
	c.Register(Descriptions, Policy{Log: descriptions, Trigger: CadenceTrigger{Every: every}, Instruction: descriptionInstruction})
	c.Register(Notes, Policy{Log: notes, Trigger: SizeTrigger{MaxChars: maxChars}, Instruction: notesInstruction})
	return c, nil
}

// Register adds or replaces the policy of a named log.
func (c *Compactor) Register(name string, policy Policy) {
	if c.policies == nil {
		c.policies = map[string]Policy{}
	}
	c.policies[name] = policy
}

// Append adds text as one line of the named log.
func (c *Compactor) Append(name, text string) error {
	policy, err := c.policy(name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return policy.Log.Append(text)
}

// ReadTail returns the last maxChars characters of the named log.
func (c *Compactor) ReadTail(name string, maxChars int) string {
	policy, err := c.policy(name)
	if err != nil {
		return ""
	}
	return policy.Log.Tail(maxChars)
}

// Record appends text and then compacts the log if its trigger is due.
func (c *Compactor) Record(ctx context.Context, name, text string, cycleID int) (bool, error) {
	if err := c.Append(name, text); err != nil {
		return false, err
	}
	return c.MaybeCompact(ctx, name, cycleID), nil
}

// MaybeCompact replaces the log with a generated summary when its trigger is due.
// A failed or empty summary leaves the log untouched.
func (c *Compactor) MaybeCompact(ctx context.Context, name string, cycleID int) bool {
	policy, err := c.policy(name)
	if err != nil {
		c.Logger.Warn("compaction skipped", map[string]interface{}{"log": name, "error": err.Error()})
		return false
	}
	if !policy.Trigger.Due(policy.Log, cycleID) {
		return false
	}

	before := policy.Log.Len()
	summary, err := c.Summarizer.Summarize(ctx, policy.Instruction, policy.Log.Content())
	if err != nil {
		c.Logger.Error("summarize log", err, map[string]interface{}{"log": name, "cycle": cycleID, "chars": before})
		return false
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		c.Logger.Warn("empty summary, log kept", map[string]interface{}{"log": name, "cycle": cycleID, "chars": before})
		return false
	}
	if err := policy.Log.Replace(summary); err != nil {
		c.Logger.Error("replace log", err, map[string]interface{}{"log": name, "cycle": cycleID})
		return false
	}
	c.Logger.Info("log compacted", map[string]interface{}{"log": name, "cycle": cycleID, "before": before, "after": policy.Log.Len()})
	return true
}

func (c *Compactor) policy(name string) (Policy, error) {
	policy, ok := c.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown log %q", name)
	}
	return policy, nil
}
