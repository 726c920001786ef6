package objective

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/doeshing/autopilot/internal/ports"
)

// FileSource reads the standing objective from a file on every call so edits
// take effect on the next cycle.
type FileSource struct {
	path string
}

// NewFileSource returns a source for path. An empty path yields no objective.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the objective file location.
func (s *FileSource) Path() string {
	return s.path
}

// Objective implements ports.ObjectiveSource. A missing file is not an error.
func (s *FileSource) Objective() (string, error) {
	if s.path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

var _ ports.ObjectiveSource = (*FileSource)(nil)
