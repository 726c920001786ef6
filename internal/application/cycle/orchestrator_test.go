package cycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/doeshing/autopilot/internal/application/budget"
	"github.com/doeshing/autopilot/internal/application/memory"
	"github.com/doeshing/autopilot/internal/application/prompt"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/infrastructure/cyclestore"
	"github.com/doeshing/autopilot/internal/infrastructure/executor"
	memlog "github.com/doeshing/autopilot/internal/infrastructure/memory"
	"github.com/doeshing/autopilot/internal/pkg/logger"
	"github.com/doeshing/autopilot/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedReply struct {
	text string
	err  error
}

type scriptedProvider struct {
	replies  []scriptedReply
	requests []ports.ProviderRequest
	onCall   func(call int)
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Model() domain.ModelDefinition {
	return domain.ModelDefinition{Name: "scripted", Temperature: 0.6}
}
func (p *scriptedProvider) Generate(_ context.Context, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	p.requests = append(p.requests, req)
	call := len(p.requests)
	if p.onCall != nil {
		p.onCall(call)
	}
	if call > len(p.replies) {
		return ports.ProviderResponse{}, errors.New("no scripted reply")
	}
	r := p.replies[call-1]
	return ports.ProviderResponse{Text: r.text}, r.err
}

type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
}

func (e *recordingExecutor) Run(_ context.Context, command string) domain.CommandOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
	return domain.CommandOutcome{Command: command, Status: domain.ExecutionSucceeded, Stdout: "ran " + command}
}

func (e *recordingExecutor) RunMany(ctx context.Context, commands []string) domain.ExecutionReport {
	var report domain.ExecutionReport
	for _, c := range commands {
		report.Outcomes = append(report.Outcomes, e.Run(ctx, c))
	}
	return report
}

type recordingSleeper struct {
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

type memoryLedger struct {
	records []domain.CycleRecord
}

func (l *memoryLedger) Append(rec domain.CycleRecord) error {
	l.records = append(l.records, rec)
	return nil
}
func (l *memoryLedger) Records(int, string) ([]domain.CycleRecord, error) { return l.records, nil }
func (l *memoryLedger) SpentSince(time.Time) (float64, error)           { return 0, nil }

type noObjective struct{}

func (noObjective) Objective() (string, error) { return "", nil }

type fixedEnvironment struct{}

func (fixedEnvironment) Collect(context.Context) (domain.EnvironmentSnapshot, error) {
	return domain.EnvironmentSnapshot{WorkingDir: "/srv", OS: "linux"}, nil
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(context.Context, string, string) (string, error) { return "", nil }

type harness struct {
	orch         *Orchestrator
	provider     *scriptedProvider
	store        *cyclestore.FSStore
	descriptions *memlog.FileLog
	ledger       *memoryLedger
	sleeper      *recordingSleeper
	governor     *budget.Governor
}

func newHarness(t *testing.T, exec ports.CommandExecutor, limit float64, replies ...scriptedReply) *harness {
	t.Helper()
	root := t.TempDir()
	log := logger.Discard()

	descriptions, err := memlog.OpenFileLog(memory.Descriptions, filepath.Join(root, domain.DescriptionLogName))
	require.NoError(t, err)
	notes, err := memlog.OpenFileLog(memory.Notes, filepath.Join(root, domain.NotesLogName))
	require.NoError(t, err)
	compactor, err := memory.NewCompactor(noopSummarizer{}, log, descriptions, notes, 20, 10000)
	require.NoError(t, err)

	assembler, err := prompt.NewAssembler(compactor, noObjective{}, fixedEnvironment{}, log, prompt.Options{})
	require.NoError(t, err)

	store := cyclestore.NewFSStore(filepath.Join(root, domain.CyclesDirName), cyclestore.Options{PollInterval: 10 * time.Millisecond})
	provider := &scriptedProvider{replies: replies}
	governor := budget.NewGovernor(limit, domain.Pricing{InputPerToken: 0.01 / 1000, OutputPerToken: 0.03 / 1000}, nil)
	ledger := &memoryLedger{}
	sleeper := &recordingSleeper{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	orch, err := NewOrchestrator(Dependencies{
		Provider:  provider,
		Assembler: assembler,
		Executor:  exec,
		Store:     store,
		Memory:    compactor,
		Governor:  governor,
		Ledger:    ledger,
		Logger:    log,
		Sleeper:   sleeper,
		Now:       func() time.Time { return fixed },
	}, Options{RunID: "run-1"})
	require.NoError(t, err)

	return &harness{
		orch:         orch,
		provider:     provider,
		store:        store,
		descriptions: descriptions,
		ledger:       ledger,
		sleeper:      sleeper,
		governor:     governor,
	}
}

func TestCycleEndToEnd(t *testing.T) {
	exec := executor.NewLocalExecutor(executor.Options{Shell: "/bin/sh", Timeout: 10 * time.Second})
	h := newHarness(t, exec, 10, scriptedReply{text: `{"cmd":"ls -la","prompt":"next step","description":"listed files"}`})
	h.orch.SetInput(`{"result":"","next_prompt":"list files","files_needed":[]}`)

	require.NoError(t, h.orch.RunCycle(context.Background()))
	assert.Equal(t, 1, h.orch.CycleID())

	require.Len(t, h.provider.requests, 1)
	req := h.provider.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, 0.6, req.Temperature)
	assert.Contains(t, req.User, `"next_prompt":"list files"`)
	assert.Contains(t, req.System, "## Operating rules")

	next := h.orch.Input()
	assert.True(t, strings.HasPrefix(next, `{"result":"Command 'ls -la' executed successfully.\n::stdout::\n`), next)
	assert.True(t, strings.HasSuffix(next, `,"next_prompt":"next step","files_needed":null}`), next)

	assert.Equal(t, "listed files\n", h.descriptions.Content())

	cycleDir := filepath.Join(h.store.Root(), "cycle_1")
	promptTxt, err := os.ReadFile(filepath.Join(cycleDir, "prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, "next step", string(promptTxt))
	cmdJSON, err := os.ReadFile(filepath.Join(cycleDir, "cmd.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"ls -la"}`, string(cmdJSON))
	resultsJSON, err := os.ReadFile(filepath.Join(cycleDir, "results.json"))
	require.NoError(t, err)
	assert.Contains(t, string(resultsJSON), "executed successfully")

	require.Len(t, h.ledger.records, 1)
	assert.Equal(t, domain.CycleDone, h.ledger.records[0].Status)
	assert.Equal(t, "listed files", h.ledger.records[0].Description)
	assert.Greater(t, h.governor.Snapshot().SpentToday, 0.0)
}

func TestParseFailureReusesCycleID(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, exec, 10,
		scriptedReply{text: `{"cmd":"ls"}`},
		scriptedReply{text: `{"prompt":"next"}`},
	)
	require.NoError(t, h.orch.Resume("start"))

	err := h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrMissingPrompt)
	assert.Equal(t, 0, h.orch.CycleID())
	assert.Empty(t, exec.commands)

	require.NoError(t, h.orch.RunCycle(context.Background()))
	assert.Equal(t, 1, h.orch.CycleID())
	_, ok := h.store.Open(1)
	assert.True(t, ok)
	_, ok = h.store.Open(2)
	assert.False(t, ok)

	next, ok := domain.DecodeDynamicInput(h.orch.Input())
	require.True(t, ok)
	assert.Equal(t, "", next.Result)
	assert.Equal(t, "next", next.NextPrompt)

	require.Len(t, h.ledger.records, 2)
	assert.Equal(t, domain.CycleFailed, h.ledger.records[0].Status)
}

func TestBudgetExhaustedSkipsGeneration(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 0, scriptedReply{text: `{"prompt":"next"}`})
	require.NoError(t, h.orch.Resume("start"))

	err := h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.Empty(t, h.provider.requests)
	assert.Equal(t, 0, h.orch.CycleID())

	_, ok := h.store.Open(1)
	assert.False(t, ok, "denied cycle must not leave a directory")
}

func TestFailedGenerationLeavesNoCycleDir(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 10,
		scriptedReply{err: errors.New("backend unavailable")},
		scriptedReply{text: `{"prompt":"next"}`},
	)
	require.NoError(t, h.orch.Resume("start"))
	require.Error(t, h.orch.RunCycle(context.Background()))

	latest, err := h.store.LatestCycleID()
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	// A restart numbers from what is on disk.
	require.NoError(t, h.orch.Resume("start"))
	require.NoError(t, h.orch.RunCycle(context.Background()))
	assert.Equal(t, 1, h.orch.CycleID())
}

type spendingMemory struct {
	governor *budget.Governor
	cost     float64
}

func (m spendingMemory) Record(context.Context, string, string, int) (bool, error) {
	m.governor.RecordSpend(m.cost)
	return true, nil
}

func TestCycleCostIncludesCompactionSpend(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 10, scriptedReply{text: `{"prompt":"next","description":"d","notes":"n"}`})
	deps := h.orch.deps
	deps.Memory = spendingMemory{governor: h.governor, cost: 0.25}
	orch, err := NewOrchestrator(deps, h.orch.opts)
	require.NoError(t, err)
	require.NoError(t, orch.Resume("start"))

	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, h.ledger.records, 1)
	rec := h.ledger.records[0]
	assert.Greater(t, rec.Cost, 0.5)
	assert.InDelta(t, h.governor.Snapshot().SpentToday, rec.Cost, 1e-9)

	restored := budget.NewGovernor(10, domain.Pricing{}, nil)
	restored.Restore(rec.Cost)
	assert.InDelta(t, h.governor.Snapshot().SpentToday, restored.Snapshot().SpentToday, 1e-9)
}

func TestExitDirective(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, exec, 10, scriptedReply{text: `{"cmd":"exit","prompt":"restart"}`})
	require.NoError(t, h.orch.Resume("start"))

	err := h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrExitRequested)
	assert.Empty(t, exec.commands)
	require.Len(t, h.ledger.records, 1)
	assert.Equal(t, domain.CycleExit, h.ledger.records[0].Status)
}

func TestAskHandledAfterCommandsAndSleep(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, exec, 10, scriptedReply{
		text: `{"cmd":["apt-get update","systemctl restart nginx"],"ask":"open port 443 on the router","prompt":"verify https","sleep":3,"notes":"nginx installed"}`,
	})
	require.NoError(t, h.orch.Resume("start"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ask := filepath.Join(h.store.Root(), "cycle_1", "ask.json")
		for i := 0; i < 500; i++ {
			if _, err := os.Stat(ask); err == nil {
				_ = os.WriteFile(filepath.Join(h.store.Root(), "cycle_1", "results.txt"), []byte("port opened\n"), 0o644)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	require.NoError(t, h.orch.RunCycle(context.Background()))
	<-done

	assert.Equal(t, []string{"apt-get update", "systemctl restart nginx"}, exec.commands)
	assert.Equal(t, []time.Duration{3 * time.Second}, h.sleeper.sleeps)

	next, ok := domain.DecodeDynamicInput(h.orch.Input())
	require.True(t, ok)
	cmdAt := strings.Index(next.Result, "ran systemctl restart nginx")
	humanAt := strings.Index(next.Result, "::human::\nport opened")
	assert.True(t, cmdAt >= 0 && humanAt > cmdAt, next.Result)
	assert.Equal(t, "verify https", next.NextPrompt)
	assert.Equal(t, domain.CycleHuman, h.ledger.records[0].Status)

	askJSON, err := os.ReadFile(filepath.Join(h.store.Root(), "cycle_1", "ask.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"task":"open port 443 on the router"}`, string(askJSON))
}

func TestResumeFromLatestPrompt(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 10)
	for _, id := range []int{1, 2, 3} {
		_, err := h.store.CreateCycleDir(id)
		require.NoError(t, err)
	}
	c2, _ := h.store.Open(2)
	require.NoError(t, h.store.Write(c2, "prompt.txt", []byte("continue with step 3")))
	require.NoError(t, h.store.Write(c2, "results.json", []byte(`{"result":"Command 'make' executed successfully."}`)))
	require.NoError(t, h.store.Write(c2, "files.json", []byte(`["/etc/hosts"]`)))

	require.NoError(t, h.orch.Resume("initial task"))
	assert.Equal(t, 3, h.orch.CycleID())

	in, ok := domain.DecodeDynamicInput(h.orch.Input())
	require.True(t, ok)
	assert.Equal(t, "continue with step 3", in.NextPrompt)
	assert.Equal(t, "Command 'make' executed successfully.", in.Result)
	assert.Equal(t, []string{"/etc/hosts"}, in.FilesNeeded)
}

func TestResumeFresh(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 10)
	require.NoError(t, h.orch.Resume("install yourself as a service"))
	assert.Equal(t, 0, h.orch.CycleID())
	assert.Equal(t, `{"result":"","next_prompt":"install yourself as a service","files_needed":null}`, h.orch.Input())
}

func TestResumeWaitsForPendingAsk(t *testing.T) {
	h := newHarness(t, &recordingExecutor{}, 10, scriptedReply{text: `{"prompt":"after answer"}`})
	c1, err := h.store.CreateCycleDir(1)
	require.NoError(t, err)
	require.NoError(t, h.store.Write(c1, "prompt.txt", []byte("use the answer")))
	require.NoError(t, h.store.Write(c1, "ask.json", []byte(`{"task":"rotate the key"}`)))

	require.NoError(t, h.orch.Resume("initial"))
	require.NoError(t, h.store.Write(c1, "results.txt", []byte("key rotated")))

	require.NoError(t, h.orch.RunCycle(context.Background()))
	require.Len(t, h.provider.requests, 1)
	assert.Contains(t, h.provider.requests[0].User, `::human::\nkey rotated`)
	assert.Equal(t, 2, h.orch.CycleID())
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	if _, err := NewOrchestrator(Dependencies{}, Options{}); err == nil {
		t.Fatal("expected dependency error")
	}
}
