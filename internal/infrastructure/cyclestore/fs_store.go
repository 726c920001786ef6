package cyclestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// Options tunes an FSStore.
type Options struct {
	// PollInterval is how often an operator answer is checked for. Zero means 5s.
	PollInterval time.Duration
	// DisableWatch skips the filesystem watcher and relies on polling alone.
	DisableWatch bool
	Logger       ports.Logger
}

// FSStore keeps every cycle in its own directory named cycle_<id>.
type FSStore struct {
	root         string
	pollInterval time.Duration
	watch        bool
	logger       ports.Logger
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string, opts Options) *FSStore {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = domain.DefaultHumanPollInterval
	}
	return &FSStore{
		root:         dir,
		pollInterval: poll,
		watch:        !opts.DisableWatch,
		logger:       opts.Logger,
	}
}

// Root returns the directory holding the cycle directories.
func (s *FSStore) Root() string {
	return s.root
}

// LatestCycleID returns the highest cycle number on disk, zero when there is none.
func (s *FSStore) LatestCycleID() (int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan cycles: %w", err)
	}
	latest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := parseCycleDir(entry.Name())
		if ok && id > latest {
			latest = id
		}
	}
	return latest, nil
}

func parseCycleDir(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, domain.CycleDirPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(suffix)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func (s *FSStore) dirFor(id int) string {
	return filepath.Join(s.root, domain.CycleDirPrefix+strconv.Itoa(id))
}

// CreateCycleDir creates the directory of a cycle; an existing one is reused.
func (s *FSStore) CreateCycleDir(id int) (ports.CycleHandle, error) {
	path := s.dirFor(id)
	if err := os.MkdirAll(path, domain.DirectoryPermissions); err != nil {
		return ports.CycleHandle{}, fmt.Errorf("create cycle %d: %w", id, err)
	}
	return ports.CycleHandle{ID: id, Path: path}, nil
}

// Open returns the handle of an existing cycle.
func (s *FSStore) Open(id int) (ports.CycleHandle, bool) {
	path := s.dirFor(id)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ports.CycleHandle{}, false
	}
	return ports.CycleHandle{ID: id, Path: path}, true
}

// Write replaces an artifact atomically.
func (s *FSStore) Write(h ports.CycleHandle, name string, content []byte) error {
	target := filepath.Join(h.Path, name)
	tmp, err := os.CreateTemp(h.Path, "."+name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := os.Chmod(tmp.Name(), domain.FilePermissions); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// Read returns an artifact; ok is false when it does not exist.
func (s *FSStore) Read(h ports.CycleHandle, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(h.Path, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WaitForHumanResult blocks until results.txt appears in the cycle directory.
// There is no deadline; only ctx ends the wait early.
func (s *FSStore) WaitForHumanResult(ctx context.Context, h ports.CycleHandle) (string, error) {
	path := filepath.Join(h.Path, domain.HumanResultFile)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if s.watch {
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			defer watcher.Close()
			if err := watcher.Add(h.Path); err == nil {
				events = watcher.Events
				watchErrs = watcher.Errors
			} else {
				s.warn("watch cycle dir", map[string]interface{}{"cycle": h.ID, "error": err.Error()})
			}
		} else {
			s.warn("new fsnotify watcher", map[string]interface{}{"error": err.Error()})
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	emptySeen := false
	for {
		data, err := os.ReadFile(path)
		switch {
		case err == nil && (len(data) > 0 || emptySeen):
			return string(data), nil
		case err == nil:
			// An editor may have created the file without writing it yet.
			emptySeen = true
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read operator result: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if event.Op&fsnotify.Write != 0 {
				emptySeen = false
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.warn("cycle dir watcher", map[string]interface{}{"cycle": h.ID, "error": err.Error()})
		}
	}
}

func (s *FSStore) warn(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, fields)
	}
}

var _ ports.CycleStore = (*FSStore)(nil)
