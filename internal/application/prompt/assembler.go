// Package prompt assembles the generation request of a cycle.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/doeshing/autopilot/internal/application/memory"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/pkg/filesystem"
	"github.com/doeshing/autopilot/internal/ports"
)

// resultTruncatedMarker ends a result that was cut to fit the prompt ceiling.
const resultTruncatedMarker = "\n...[result truncated to fit the prompt]"

// maxTruncationPasses bounds re-encoding when JSON escaping shifts the size.
const maxTruncationPasses = 4

// TailReader reads the end of a rolling log.
type TailReader interface {
	ReadTail(name string, maxChars int) string
}

// Options bounds prompt assembly.
type Options struct {
	MaxChars        int
	DescriptionTail int
	NotesTail       int
}

// Assembler builds the system and user text of a cycle.
type Assembler struct {
	Memory      TailReader
	Objective   ports.ObjectiveSource
	Environment ports.EnvironmentCollector
	Logger      ports.Logger
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
	opts     Options
}

// NewAssembler validates dependencies and fills option defaults.
func NewAssembler(mem TailReader, objective ports.ObjectiveSource, env ports.EnvironmentCollector, logger ports.Logger, opts Options) (*Assembler, error) {
	if mem == nil || objective == nil || env == nil || logger == nil {
		return nil, errors.New("prompt.Assembler dependencies not satisfied")
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = domain.DefaultPromptMaxChars
	}
	if opts.DescriptionTail <= 0 {
		opts.DescriptionTail = domain.DefaultDescriptionTail
	}
	if opts.NotesTail <= 0 {
		opts.NotesTail = domain.DefaultNotesTail
	}
	return &Assembler{
		Memory:      mem,
		Objective:   objective,
		Environment: env,
		Logger:      logger,
		ReadFile:    os.ReadFile,
		opts:        opts,
	}, nil
}

// Section is one labeled block of prompt text.
type Section struct {
	Label string
	Body  string
}

// Join renders sections in order, skipping empty ones.
func Join(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		if s.Label == "" {
			parts = append(parts, body)
			continue
		}
		parts = append(parts, "## "+s.Label+"\n"+body)
	}
	return strings.Join(parts, "\n\n")
}

// Build assembles the prompt of cycleID from the previous cycle's dynamic input.
func (a *Assembler) Build(ctx context.Context, dynamicInput string, cycleID int) (domain.Prompt, error) {
	system := Join(a.staticSections(ctx))

	head := []Section{
		{Label: "Previous cycles", Body: a.Memory.ReadTail(memory.Descriptions, a.opts.DescriptionTail)},
		{Label: "Current cycle", Body: fmt.Sprintf("This is cycle %d.", cycleID)},
	}
	headText := Join(head)
	// Size of everything except the input section body.
	fixed := len(system) + len(headText) + len("\n\n## Input\n")

	input := a.inlineFiles(dynamicInput, fixed)
	input = a.fit(input, fixed, cycleID)

	user := Join(append(head, Section{Label: "Input", Body: input}))
	return domain.Prompt{System: system, User: user}, nil
}

func (a *Assembler) staticSections(ctx context.Context) []Section {
	objective, err := a.Objective.Objective()
	if err != nil {
		a.Logger.Warn("read objective", map[string]interface{}{"error": err.Error()})
		objective = ""
	}

	var environment string
	if snapshot, err := a.Environment.Collect(ctx); err != nil {
		a.Logger.Warn("collect environment", map[string]interface{}{"error": err.Error()})
	} else {
		environment = snapshot.Render()
	}

	return []Section{
		{Label: "Operating rules", Body: operatingRules},
		{Label: "Objective", Body: objective},
		{Label: "Notes", Body: a.Memory.ReadTail(memory.Notes, a.opts.NotesTail)},
		{Label: "Environment", Body: environment},
	}
}

// inlineFiles replaces each requested path with "path:content". Any read failure
// keeps the input unmodified.
func (a *Assembler) inlineFiles(raw string, fixed int) string {
	in, ok := domain.DecodeDynamicInput(raw)
	if !ok || len(in.FilesNeeded) == 0 {
		return raw
	}

	size := fixed + len(raw)
	inlined := make([]string, 0, len(in.FilesNeeded))
	for _, path := range in.FilesNeeded {
		content, err := a.ReadFile(filesystem.ExpandPath(path))
		if err != nil {
			a.Logger.Error("inline requested file", err, map[string]interface{}{"path": path})
			return raw
		}
		entry := path + ":" + string(content)
		if size+len(entry)-len(path) > a.opts.MaxChars {
			entry = fmt.Sprintf("%s: [file too large to include: %d bytes]", path, len(content))
		}
		size += len(entry) - len(path)
		inlined = append(inlined, entry)
	}
	in.FilesNeeded = inlined

	encoded, err := in.Encode()
	if err != nil {
		a.Logger.Error("encode dynamic input", err, nil)
		return raw
	}
	return encoded
}

// fit cuts the result field until the prompt is within the ceiling.
func (a *Assembler) fit(input string, fixed, cycleID int) string {
	if fixed+len(input) <= a.opts.MaxChars {
		return input
	}
	in, ok := domain.DecodeDynamicInput(input)
	if !ok {
		a.Logger.Warn("prompt over ceiling without a result to truncate", map[string]interface{}{"cycle": cycleID, "chars": fixed + len(input)})
		return input
	}

	original := len(in.Result)
	for pass := 0; pass < maxTruncationPasses && fixed+len(input) > a.opts.MaxChars; pass++ {
		over := fixed + len(input) - a.opts.MaxChars
		keep := len(strings.TrimSuffix(in.Result, resultTruncatedMarker)) - over - len(resultTruncatedMarker)
		in.Result = cutBytes(strings.TrimSuffix(in.Result, resultTruncatedMarker), keep) + resultTruncatedMarker
		encoded, err := in.Encode()
		if err != nil {
			a.Logger.Error("encode dynamic input", err, nil)
			return input
		}
		input = encoded
		if keep <= 0 {
			break
		}
	}
	a.Logger.Info("result truncated to fit prompt", map[string]interface{}{"cycle": cycleID, "from": original, "to": len(in.Result)})
	return input
}

// cutBytes returns the longest prefix of s of at most n bytes ending on a rune boundary.
func cutBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
