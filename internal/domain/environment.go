package domain

import (
	"fmt"
	"sort"
	"strings"
)

// EnvironmentSnapshot describes the host the engine runs on.
type EnvironmentSnapshot struct {
	WorkingDir     string
	Hostname       string
	OS             string
	Arch           string
	Shell          string
	User           string
	Root           bool
	AvailableTools []string
	Variables      map[string]string
}

// Render formats the snapshot as prompt text.
func (s EnvironmentSnapshot) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "working directory: %s\n", s.WorkingDir)
	fmt.Fprintf(&b, "host: %s (%s/%s)\n", s.Hostname, s.OS, s.Arch)
	fmt.Fprintf(&b, "shell: %s\n", s.Shell)
	user := s.User
	if s.Root {
		user += " (root)"
	}
	fmt.Fprintf(&b, "user: %s\n", user)
	if len(s.AvailableTools) > 0 {
		fmt.Fprintf(&b, "tools: %s\n", strings.Join(s.AvailableTools, ", "))
	}
	if len(s.Variables) > 0 {
		keys := make([]string, 0, len(s.Variables))
		for k := range s.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, s.Variables[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
