package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/infrastructure/cyclestore"
)

func TestAnswerText(t *testing.T) {
	got, err := answerText(strings.NewReader("ignored"), []string{"yes,", "go", "ahead"})
	require.NoError(t, err)
	assert.Equal(t, "yes, go ahead", got)

	got, err = answerText(strings.NewReader("\nthe password is in the vault\n"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "the password is in the vault", got)

	_, err = answerText(strings.NewReader("   "), []string{"-"})
	require.Error(t, err)
}

func TestWriteAnswer(t *testing.T) {
	store := cyclestore.NewFSStore(t.TempDir(), cyclestore.Options{DisableWatch: true})
	h, err := store.CreateCycleDir(4)
	require.NoError(t, err)
	require.NoError(t, store.Write(h, domain.AskFile, []byte(`{"task":"approve?"}`)))

	var out bytes.Buffer
	require.NoError(t, writeAnswer(&out, store, 4, "approved"))
	assert.Equal(t, "Answer recorded for cycle 4\n", out.String())

	raw, err := os.ReadFile(filepath.Join(h.Path, domain.HumanResultFile))
	require.NoError(t, err)
	assert.Equal(t, "approved\n", string(raw))

	require.Error(t, writeAnswer(&out, store, 9, "nobody asked"))
}

func TestWriteAnswerWarnsWithoutQuestion(t *testing.T) {
	store := cyclestore.NewFSStore(t.TempDir(), cyclestore.Options{DisableWatch: true})
	_, err := store.CreateCycleDir(1)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeAnswer(&out, store, 1, "fyi"))
	assert.Contains(t, out.String(), "no pending question")
}

func TestPendingAsk(t *testing.T) {
	store := cyclestore.NewFSStore(t.TempDir(), cyclestore.Options{DisableWatch: true})
	h, err := store.CreateCycleDir(2)
	require.NoError(t, err)
	assert.Empty(t, pendingAsk(store, h))

	require.NoError(t, store.Write(h, domain.AskFile, []byte(`{"task":"which region?"}`)))
	require.NoError(t, store.Write(h, domain.CommandFile, []byte(`{"command":["ls","df -h"]}`)))
	assert.Equal(t, "which region?", pendingAsk(store, h))
	assert.Equal(t, []string{"ls", "df -h"}, readCommands(store, h))

	require.NoError(t, store.Write(h, domain.HumanResultFile, []byte("eu-west-1\n")))
	assert.Empty(t, pendingAsk(store, h))
}

func TestRenderRecords(t *testing.T) {
	var out bytes.Buffer
	renderRecords(&out, []domain.CycleRecord{
		{CycleID: 3, StartedAt: time.Now().Add(-2 * time.Minute), Status: domain.CycleDone, Model: "gpt", Cost: 0.0123, Description: "checked disk usage"},
		{CycleID: 4, Status: domain.CycleFailed, Error: "malformed directive"},
	})
	text := out.String()
	assert.Contains(t, text, "checked disk usage")
	assert.Contains(t, text, "$0.0123")
	assert.Contains(t, text, "malformed directive")
	assert.Contains(t, text, "minutes ago")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "a b", clip("a\n  b", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}

func TestDisplayConfigDiff(t *testing.T) {
	var out bytes.Buffer
	displayConfigDiff(&out, "")
	assert.Equal(t, MsgNoDifferencesFromDefault+"\n", out.String())

	out.Reset()
	displayConfigDiff(&out, "-a\n+b\n")
	assert.True(t, strings.HasPrefix(out.String(), "(-default +current)\n"))
}

func TestDisplayDoctorReport(t *testing.T) {
	var out bytes.Buffer
	displayDoctorReport(&out, domain.HealthReport{Checks: []domain.HealthCheck{
		{Name: "Shell", Status: domain.HealthOK, Details: "/bin/sh"},
		{Name: "Objective", Status: domain.HealthWarn, Details: "empty"},
	}})
	assert.Contains(t, out.String(), "[OK   ] Shell")
	assert.Contains(t, out.String(), "1 ok, 1 warning(s), 0 error(s)")
}

func TestVersionShort(t *testing.T) {
	cmd := NewVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}
