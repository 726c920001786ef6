package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// FileLog is an append-only text file mirrored in memory.
type FileLog struct {
	mu      sync.Mutex
	name    string
	path    string
	content string
}

// OpenFileLog loads the log at path, creating its directory when needed.
func OpenFileLog(name, path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create %s log dir: %w", name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s log: %w", name, err)
	}
	return &FileLog{name: name, path: path, content: string(data)}, nil
}

func (l *FileLog) Name() string {
	return l.name
}

// Path returns the backing file.
func (l *FileLog) Path() string {
	return l.path
}

// Append writes text as one line.
func (l *FileLog) Append(text string) error {
	line := strings.TrimRight(text, "\n") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.FilePermissions)
	if err != nil {
		return fmt.Errorf("open %s log: %w", l.name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append %s log: %w", l.name, err)
	}
	l.content += line
	return nil
}

func (l *FileLog) Content() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.content
}

// Tail returns the last maxChars characters.
func (l *FileLog) Tail(maxChars int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return tail(l.content, maxChars)
}

// Len is the size of the log in characters.
func (l *FileLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return utf8.RuneCountInString(l.content)
}

// Replace swaps the whole log for content.
func (l *FileLog) Replace(content string) error {
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), domain.FilePermissions); err != nil {
		return fmt.Errorf("write %s log: %w", l.name, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s log: %w", l.name, err)
	}
	l.content = content
	return nil
}

func tail(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-maxChars:])
}

var _ ports.MemoryLog = (*FileLog)(nil)
