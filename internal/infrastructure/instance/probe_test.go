package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/autopilot/internal/domain"
)

func fakeProc(t *testing.T, procs map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, comm := range procs {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0o755))
	return root
}

func TestPeersCountsSameNameExceptSelf(t *testing.T) {
	root := fakeProc(t, map[int]string{10: "autopilot", 11: "autopilot", 12: "bash", 99: "autopilot"})
	p := &Probe{ProcRoot: root, Name: "autopilot", Self: 99}

	n, err := p.Peers()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAcquireRefusesAtCap(t *testing.T) {
	root := fakeProc(t, map[int]string{10: "autopilot", 11: "autopilot"})
	p := &Probe{ProcRoot: root, Name: "autopilot", Self: os.Getpid()}

	_, err := p.Acquire(t.TempDir(), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTooManyInstances))
}

func TestAcquirePicksLowestFreeSlot(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.MkdirAll(state, 0o755))
	// slot 1 is held by the test process's parent, which is alive.
	require.NoError(t, os.WriteFile(filepath.Join(state, "instance_1.pid"), []byte(strconv.Itoa(os.Getppid())), 0o644))
	// slot 2 names a pid that cannot exist.
	require.NoError(t, os.WriteFile(filepath.Join(state, "instance_2.pid"), []byte("999999999"), 0o644))

	p := &Probe{ProcRoot: fakeProc(t, nil), Name: "autopilot", Self: os.Getpid()}
	slot, err := p.Acquire(state, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, slot.Index)
	assert.Equal(t, state+"_2", slot.StateRoot)
	raw, err := os.ReadFile(filepath.Join(state, "instance_2.pid"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(raw))

	require.NoError(t, slot.Release())
	_, err = os.Stat(filepath.Join(state, "instance_2.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireFirstSlotUsesStateDir(t *testing.T) {
	state := t.TempDir()
	p := &Probe{ProcRoot: fakeProc(t, nil), Name: "autopilot", Self: os.Getpid()}

	slot, err := p.Acquire(state, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Release() })

	assert.Equal(t, 1, slot.Index)
	assert.Equal(t, state, slot.StateRoot)
	assert.Equal(t, []int{1}, Occupied(state, 3))
}

func TestStateRoot(t *testing.T) {
	assert.Equal(t, "/var/lib/autopilot", StateRoot("/var/lib/autopilot", 1))
	assert.Equal(t, "/var/lib/autopilot", StateRoot("/var/lib/autopilot", 0))
	assert.Equal(t, "/var/lib/autopilot_3", StateRoot("/var/lib/autopilot/", 3))
}
