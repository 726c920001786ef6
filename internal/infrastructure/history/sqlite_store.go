package history

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// Store is the ledger plus the maintenance operations the CLI exposes.
type Store interface {
	ports.CycleLedger
	PruneOlderThan(cutoff time.Time) (int, error)
	ExportJSON(dest string) (int, error)
	Path() string
	Close() error
}

// Open returns a SQLite ledger under dir, or a jsonl ledger when SQLite cannot be opened.
func Open(dir string) Store {
	store, err := NewSQLiteStore(filepath.Join(dir, domain.HistoryDBName))
	if err != nil {
		return NewFileStore(filepath.Join(dir, domain.HistoryFileName))
	}
	return store
}

// SQLiteStore persists cycle records in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore creates (or opens) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		cycle_id INTEGER,
		started_at INTEGER,
		finished_at INTEGER,
		model TEXT,
		status TEXT,
		description TEXT,
		commands TEXT,
		ask TEXT,
		cost REAL,
		error TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS cycles_started_at ON cycles (started_at)")
	return err
}

// Append inserts a new record.
func (s *SQLiteStore) Append(record domain.CycleRecord) error {
	commands, err := json.Marshal(record.Commands)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO cycles
		(run_id, cycle_id, started_at, finished_at, model, status, description, commands, ask, cost, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.CycleID,
		toNanos(record.StartedAt),
		toNanos(record.FinishedAt),
		record.Model,
		string(record.Status),
		record.Description,
		string(commands),
		record.Ask,
		record.Cost,
		record.Error,
	)
	return err
}

// Records returns entries newest first (limit/search optional).
func (s *SQLiteStore) Records(limit int, search string) ([]domain.CycleRecord, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT run_id, cycle_id, started_at, finished_at, model, status, description, commands, ask, cost, error FROM cycles")
	var args []interface{}
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + search + "%"
		builder.WriteString(" WHERE description LIKE ? OR commands LIKE ? OR ask LIKE ? OR error LIKE ? OR status LIKE ? OR model LIKE ?")
		args = append(args, pattern, pattern, pattern, pattern, pattern, pattern)
	}
	builder.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CycleRecord
	for rows.Next() {
		var rec domain.CycleRecord
		var started, finished int64
		var status, commands string
		if err := rows.Scan(&rec.RunID, &rec.CycleID, &started, &finished, &rec.Model, &status,
			&rec.Description, &commands, &rec.Ask, &rec.Cost, &rec.Error); err != nil {
			return nil, err
		}
		rec.StartedAt = fromNanos(started)
		rec.FinishedAt = fromNanos(finished)
		rec.Status = domain.CycleStatus(status)
		_ = json.Unmarshal([]byte(commands), &rec.Commands)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SpentSince sums the cost of cycles started at or after since.
func (s *SQLiteStore) SpentSince(since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	err := s.db.QueryRow("SELECT COALESCE(SUM(cost), 0) FROM cycles WHERE started_at >= ?", since.UnixNano()).Scan(&total)
	return total, err
}

// PruneOlderThan deletes records started before cutoff.
func (s *SQLiteStore) PruneOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM cycles WHERE started_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ExportJSON writes the cycle table oldest first to a jsonl file.
func (s *SQLiteStore) ExportJSON(dest string) (int, error) {
	records, err := s.Records(0, "")
	if err != nil {
		return 0, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return writeJSONL(dest, records)
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var _ Store = (*SQLiteStore)(nil)
