// Package directive decodes generation responses into directives.
package directive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doeshing/autopilot/internal/domain"
)

// Parse decodes a generation response. A response that is not a JSON object, has
// mistyped fields or lacks a non-empty prompt is rejected.
func Parse(response string) (domain.Directive, error) {
	body := extractObject(response)
	if body == "" {
		return domain.Directive{}, fmt.Errorf("%w: response is not a JSON object", domain.ErrMalformedDirective)
	}

	var raw struct {
		domain.Directive
		Sleep json.RawMessage `json:"sleep"`
	}
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return domain.Directive{}, fmt.Errorf("%w: %v", domain.ErrMalformedDirective, err)
	}

	d := raw.Directive
	sleep, err := parseSleep(raw.Sleep)
	if err != nil {
		return domain.Directive{}, fmt.Errorf("%w: %v", domain.ErrMalformedDirective, err)
	}
	d.Sleep = sleep

	d.Prompt = strings.TrimSpace(d.Prompt)
	if d.Prompt == "" {
		return domain.Directive{}, domain.ErrMissingPrompt
	}
	return d, nil
}

// parseSleep accepts a number or a numeric string.
func parseSleep(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return 0, nil
	}
	var seconds float64
	if err := json.Unmarshal(trimmed, &seconds); err == nil {
		return clampSleep(seconds), nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return 0, fmt.Errorf("sleep must be a number of seconds")
	}
	if text == "" {
		return 0, nil
	}
	if _, err := fmt.Sscanf(text, "%g", &seconds); err != nil {
		return 0, fmt.Errorf("sleep must be a number of seconds, got %q", text)
	}
	return clampSleep(seconds), nil
}

func clampSleep(seconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	return seconds
}

// extractObject returns the outermost JSON object of a response, tolerating
// markdown fences some backends wrap around JSON mode output.
func extractObject(response string) string {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
