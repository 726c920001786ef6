package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
)

// FileStore appends cycle records to a jsonl file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a jsonl ledger at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append implements ports.CycleLedger.
func (f *FileStore) Append(record domain.CycleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.FilePermissions)
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = file.Write(data)
	return err
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Close is a no-op for the file backend.
func (f *FileStore) Close() error {
	return nil
}

// Records returns entries newest first, filtered by a case-insensitive search.
func (f *FileStore) Records(limit int, search string) ([]domain.CycleRecord, error) {
	f.mu.Lock()
	all, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	var records []domain.CycleRecord
	for i := len(all) - 1; i >= 0; i-- {
		if needle != "" && !matches(all[i], needle) {
			continue
		}
		records = append(records, all[i])
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records, nil
}

// SpentSince sums the cost of cycles started at or after since.
func (f *FileStore) SpentSince(since time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, rec := range all {
		if !rec.StartedAt.Before(since) {
			total += rec.Cost
		}
	}
	return total, nil
}

// PruneOlderThan drops records started before cutoff and reports how many went.
func (f *FileStore) PruneOlderThan(cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return 0, err
	}
	var kept bytes.Buffer
	removed := 0
	for _, rec := range all {
		if rec.StartedAt.Before(cutoff) {
			removed++
			continue
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		kept.Write(line)
		kept.WriteByte('\n')
	}
	if removed == 0 {
		return 0, nil
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, kept.Bytes(), domain.FilePermissions); err != nil {
		return 0, err
	}
	return removed, os.Rename(tmp, f.path)
}

// ExportJSON writes all records oldest first to dest as jsonl.
func (f *FileStore) ExportJSON(dest string) (int, error) {
	f.mu.Lock()
	all, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return writeJSONL(dest, all)
}

// readAll loads the file best-effort, skipping lines that do not decode.
func (f *FileStore) readAll() ([]domain.CycleRecord, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var records []domain.CycleRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec domain.CycleRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}

func matches(rec domain.CycleRecord, needle string) bool {
	fields := []string{rec.Description, rec.Ask, rec.Error, string(rec.Status), rec.Model, strings.Join(rec.Commands, "\n")}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func writeJSONL(dest string, records []domain.CycleRecord) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dest), domain.DirectoryPermissions); err != nil {
		return 0, err
	}
	file, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return 0, err
		}
	}
	return len(records), w.Flush()
}

var _ Store = (*FileStore)(nil)
