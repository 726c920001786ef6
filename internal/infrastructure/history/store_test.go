package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/autopilot/internal/domain"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := NewSQLiteStore(filepath.Join(dir, domain.HistoryDBName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"jsonl":  NewFileStore(filepath.Join(dir, domain.HistoryFileName)),
	}
}

func record(id int, started time.Time, cost float64, description string) domain.CycleRecord {
	return domain.CycleRecord{
		RunID:       "run-1",
		CycleID:     id,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
		Model:       "gpt-4",
		Status:      domain.CycleDone,
		Description: description,
		Commands:    []string{"echo " + description},
		Cost:        cost,
	}
}

func TestStoreRoundTripAndOrdering(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(record(1, base, 0.1, "install nginx")))
			require.NoError(t, store.Append(record(2, base.Add(time.Minute), 0.2, "configure firewall")))
			require.NoError(t, store.Append(record(3, base.Add(2*time.Minute), 0.3, "restart nginx")))

			all, err := store.Records(0, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, 3, all[0].CycleID)
			assert.Equal(t, []string{"echo restart nginx"}, all[0].Commands)
			assert.True(t, all[2].StartedAt.Equal(base))

			limited, err := store.Records(1, "")
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, 3, limited[0].CycleID)

			found, err := store.Records(0, "NGINX")
			require.NoError(t, err)
			require.Len(t, found, 2)
			assert.Equal(t, 3, found[0].CycleID)
			assert.Equal(t, 1, found[1].CycleID)
		})
	}
}

func TestStoreSpentSince(t *testing.T) {
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(record(1, day.Add(-time.Hour), 1.5, "yesterday")))
			require.NoError(t, store.Append(record(2, day, 0.25, "midnight")))
			require.NoError(t, store.Append(record(3, day.Add(3*time.Hour), 0.5, "morning")))

			spent, err := store.SpentSince(day)
			require.NoError(t, err)
			assert.InDelta(t, 0.75, spent, 1e-9)
		})
	}
}

func TestStorePruneAndExport(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(record(1, base, 0.1, "old")))
			require.NoError(t, store.Append(record(2, base.AddDate(0, 0, 10), 0.1, "new")))

			removed, err := store.PruneOlderThan(base.AddDate(0, 0, 5))
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			remaining, err := store.Records(0, "")
			require.NoError(t, err)
			require.Len(t, remaining, 1)
			assert.Equal(t, "new", remaining[0].Description)

			dest := filepath.Join(t.TempDir(), "export.jsonl")
			n, err := store.ExportJSON(dest)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"description":"new"`)
		})
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"cycle_id\":4,\"cost\":0.5}\n"), 0o644))

	records, err := NewFileStore(path).Records(0, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].CycleID)
}

func TestOpenPrefersSQLite(t *testing.T) {
	store := Open(t.TempDir())
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, domain.HistoryDBName, filepath.Base(store.Path()))
}
