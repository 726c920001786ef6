// Package instance limits how many engines run on one machine and gives each
// its own state root.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/doeshing/autopilot/internal/domain"
)

// Probe counts peer processes and claims slots through pid files.
type Probe struct {
	ProcRoot string
	Name     string
	Self     int
}

// NewProbe inspects /proc for processes named like the running executable.
func NewProbe() *Probe {
	name := filepath.Base(os.Args[0])
	if exe, err := os.Executable(); err == nil {
		name = filepath.Base(exe)
	}
	return &Probe{ProcRoot: "/proc", Name: name, Self: os.Getpid()}
}

// Slot is a claimed instance slot.
type Slot struct {
	Index     int
	StateRoot string
	pidFile   string
}

// Release removes the slot's pid file.
func (s *Slot) Release() error {
	if s == nil || s.pidFile == "" {
		return nil
	}
	if err := os.Remove(s.pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Peers returns the number of other live processes with the same name.
func (p *Probe) Peers() (int, error) {
	entries, err := os.ReadDir(p.ProcRoot)
	if err != nil {
		return 0, err
	}
	// comm is truncated to 15 bytes by the kernel.
	want := p.Name
	if len(want) > 15 {
		want = want[:15]
	}
	count := 0
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == p.Self {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(p.ProcRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == want {
			count++
		}
	}
	return count, nil
}

// Acquire refuses when max or more peers run, then claims the lowest free slot.
// Slot 1 uses stateDir itself; slot i uses stateDir_i.
func (p *Probe) Acquire(stateDir string, max int) (*Slot, error) {
	if max <= 0 {
		max = domain.DefaultMaxInstances
	}
	peers, err := p.Peers()
	if err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}
	if peers >= max {
		return nil, fmt.Errorf("%w: %d already running (max %d)", domain.ErrTooManyInstances, peers, max)
	}

	if err := os.MkdirAll(stateDir, domain.DirectoryPermissions); err != nil {
		return nil, err
	}
	for i := 1; i <= max; i++ {
		pidFile := filepath.Join(stateDir, fmt.Sprintf("instance_%d.pid", i))
		if holder, ok := readPID(pidFile); ok && holder != p.Self && alive(holder) {
			continue
		}
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(p.Self)+"\n"), domain.FilePermissions); err != nil {
			return nil, err
		}
		return &Slot{Index: i, StateRoot: StateRoot(stateDir, i), pidFile: pidFile}, nil
	}
	return nil, fmt.Errorf("%w: all %d slots held", domain.ErrTooManyInstances, max)
}

// StateRoot is the state directory used by slot i.
func StateRoot(stateDir string, i int) string {
	if i <= 1 {
		return stateDir
	}
	return fmt.Sprintf("%s_%d", strings.TrimRight(stateDir, string(filepath.Separator)), i)
}

// Occupied lists slot indexes whose pid file names a live process.
func Occupied(stateDir string, max int) []int {
	var held []int
	for i := 1; i <= max; i++ {
		if pid, ok := readPID(filepath.Join(stateDir, fmt.Sprintf("instance_%d.pid", i))); ok && alive(pid) {
			held = append(held, i)
		}
	}
	return held
}

func readPID(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
