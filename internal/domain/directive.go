package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Sentinel field values with special meaning.
const (
	// ExitCommand as the whole cmd value halts the engine.
	ExitCommand = "exit"
	// NoAsk is the literal some models emit instead of omitting ask.
	NoAsk = "None"
)

// Directive is the decoded instruction of one generation call.
type Directive struct {
	Cmd         CommandList `json:"cmd"`
	Ask         string      `json:"ask,omitempty"`
	Prompt      string      `json:"prompt"`
	FilesNeeded []string    `json:"files_needed,omitempty"`
	Description string      `json:"description,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	Sleep       float64     `json:"sleep,omitempty"`
}

// HasAsk reports whether the directive escalates to a human operator.
func (d Directive) HasAsk() bool {
	ask := strings.TrimSpace(d.Ask)
	return ask != "" && ask != NoAsk
}

// IsExit reports whether the directive asks the engine to halt.
func (d Directive) IsExit() bool {
	return d.Cmd.single && len(d.Cmd.Commands) == 1 && strings.TrimSpace(d.Cmd.Commands[0]) == ExitCommand
}

// CommandList accepts either a single command string or a list of strings.
type CommandList struct {
	Commands []string
	single   bool
}

// SingleCommand builds a list from one command string.
func SingleCommand(command string) CommandList {
	return CommandList{Commands: []string{command}, single: true}
}

// Commands builds a list from several command strings.
func Commands(commands ...string) CommandList {
	return CommandList{Commands: commands}
}

// Empty reports whether there is nothing to execute.
func (c CommandList) Empty() bool {
	for _, cmd := range c.Commands {
		if strings.TrimSpace(cmd) != "" {
			return false
		}
	}
	return true
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CommandList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*c = CommandList{}
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*c = SingleCommand(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("cmd must be a string or a list of strings: %w", err)
	}
	*c = Commands(list...)
	return nil
}

// MarshalJSON keeps the shape the command was received in.
func (c CommandList) MarshalJSON() ([]byte, error) {
	if c.single && len(c.Commands) == 1 {
		return json.Marshal(c.Commands[0])
	}
	if c.Commands == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.Commands)
}

// DynamicInput is the envelope threading one cycle's outcome into the next prompt.
type DynamicInput struct {
	Result      string   `json:"result"`
	NextPrompt  string   `json:"next_prompt"`
	FilesNeeded []string `json:"files_needed"`
}

// Encode serializes the envelope.
func (in DynamicInput) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeDynamicInput parses an envelope. ok is false for plain-text input.
func DecodeDynamicInput(raw string) (DynamicInput, bool) {
	var in DynamicInput
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return in, false
	}
	if err := json.Unmarshal([]byte(trimmed), &in); err != nil {
		return DynamicInput{}, false
	}
	return in, true
}
