package contextcollector

import (
	"context"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// BasicCollector implements EnvironmentCollector with host facts + tool detection.
type BasicCollector struct {
	toolsToCheck []string
	envKeys      []string
	shell        string
}

func NewBasicCollector(shell string, envKeys []string) *BasicCollector {
	return &BasicCollector{
		toolsToCheck: []string{"apt-get", "curl", "docker", "git", "go", "make", "node", "npm", "pip3", "python3", "systemctl", "wget"},
		envKeys:      envKeys,
		shell:        shell,
	}
}

// Collect gathers environment data.
func (c *BasicCollector) Collect(ctx context.Context) (domain.EnvironmentSnapshot, error) {
	wd, _ := os.Getwd()
	hostname, _ := os.Hostname()

	name := os.Getenv("USER")
	if current, err := user.Current(); err == nil {
		name = current.Username
	}

	vars := map[string]string{}
	for _, key := range c.envKeys {
		if value, ok := os.LookupEnv(key); ok {
			vars[key] = value
		}
	}

	return domain.EnvironmentSnapshot{
		WorkingDir:     wd,
		Hostname:       hostname,
		OS:             describeOS(ctx),
		Arch:           runtime.GOARCH,
		Shell:          c.detectShell(),
		User:           name,
		Root:           os.Geteuid() == 0,
		AvailableTools: c.detectTools(),
		Variables:      vars,
	}, nil
}

func (c *BasicCollector) detectTools() []string {
	var available []string
	for _, tool := range c.toolsToCheck {
		if _, err := exec.LookPath(tool); err == nil {
			available = append(available, tool)
		}
	}
	sort.Strings(available)
	return available
}

func (c *BasicCollector) detectShell() string {
	if c.shell != "" {
		return filepath.Base(c.shell)
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	return "sh"
}

// describeOS prefers the distribution name over GOOS when one is available.
func describeOS(ctx context.Context) string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		if out := strings.TrimSpace(runCmd(ctx, "", "uname", "-sr")); out != "" {
			return out
		}
		return runtime.GOOS
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(value, "\"")
		}
	}
	return runtime.GOOS
}

func runCmd(ctx context.Context, dir string, name string, args ...string) string {
	cctx, cancel := context.WithTimeout(ctx, domain.DefaultToolProbeTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ""
	}
	return string(out)
}

var _ ports.EnvironmentCollector = (*BasicCollector)(nil)

// CachedCollector collects once and serves the same snapshot afterwards.
type CachedCollector struct {
	inner    ports.EnvironmentCollector
	snapshot *domain.EnvironmentSnapshot
	taken    time.Time
	ttl      time.Duration
}

// NewCachedCollector wraps a collector; a zero ttl caches for the life of the process.
func NewCachedCollector(inner ports.EnvironmentCollector, ttl time.Duration) *CachedCollector {
	return &CachedCollector{inner: inner, ttl: ttl}
}

func (c *CachedCollector) Collect(ctx context.Context) (domain.EnvironmentSnapshot, error) {
	if c.snapshot != nil && (c.ttl == 0 || time.Since(c.taken) < c.ttl) {
		return *c.snapshot, nil
	}
	snapshot, err := c.inner.Collect(ctx)
	if err != nil {
		return domain.EnvironmentSnapshot{}, err
	}
	c.snapshot = &snapshot
	c.taken = time.Now()
	return snapshot, nil
}

var _ ports.EnvironmentCollector = (*CachedCollector)(nil)
