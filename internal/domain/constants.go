package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
	// FilePermissions is the permission for cycle artifacts (rw-r--r--)
	FilePermissions = 0o644
)

// Timeout and duration constants
const (
	// DefaultCycleInterval is the minimum spacing between cycle starts
	DefaultCycleInterval = 60 * time.Second
	// DefaultErrorBackoff is the pause after a failed cycle without a retry hint
	DefaultErrorBackoff = 60 * time.Second
	// DefaultCommandTimeout is how long a single command may run before it is detached
	DefaultCommandTimeout = 30 * time.Second
	// DefaultHumanPollInterval is how often a cycle directory is checked for an operator answer
	DefaultHumanPollInterval = 5 * time.Second
	// DefaultHTTPClientTimeout is the timeout for HTTP client requests
	DefaultHTTPClientTimeout = 120 * time.Second
	// DefaultToolProbeTimeout bounds environment probes
	DefaultToolProbeTimeout = 2 * time.Second
)

// Limit constants
const (
	// DefaultDailyBudget is the daily spend ceiling
	DefaultDailyBudget = 10.0
	// DefaultOutputLimit caps stdout and stderr in an execution report
	DefaultOutputLimit = 2000
	// DefaultOutputMargin is the overflow tolerated before output is cut
	DefaultOutputMargin = 10
	// DefaultPromptMaxChars is the absolute prompt size ceiling
	DefaultPromptMaxChars = 100000
	// DefaultDescriptionTail is how much of the description log is shown each cycle
	DefaultDescriptionTail = 1000
	// DefaultNotesTail is how much of the notes log is shown each cycle
	DefaultNotesTail = 1200
	// DefaultDescriptionEvery is the cycle cadence of description compaction
	DefaultDescriptionEvery = 20
	// DefaultNotesMaxChars is the size that triggers notes compaction
	DefaultNotesMaxChars = 10000
	// DefaultMaxInstances caps concurrently running engines
	DefaultMaxInstances = 3
	// TokenOverhead is added to word counts to account for formatting tokens
	TokenOverhead = 100
	// DefaultTemperature is the sampling temperature for directive generation
	DefaultTemperature = 0.6
)

// History constants
const (
	// DefaultHistoryLimit is the default number of ledger records to display
	DefaultHistoryLimit = 20
	// DefaultHistorySearchLimit is the default number of search results to return
	DefaultHistorySearchLimit = 50
	// DefaultHistoryRetainDays is the default number of days to retain ledger rows
	DefaultHistoryRetainDays = 30
)

// State layout
const (
	// CyclesDirName holds one directory per cycle
	CyclesDirName = "cycles"
	// CycleDirPrefix prefixes the numeric cycle id
	CycleDirPrefix = "cycle_"
	// DescriptionLogName is the rolling action log
	DescriptionLogName = "descriptions.log"
	// NotesLogName is the rolling notes log
	NotesLogName = "notes.log"
	// ResponseLogName receives every log record and raw generation response
	ResponseLogName = "responses.log"
	// HistoryDBName is the cycle ledger database
	HistoryDBName = "history.db"
	// HistoryFileName is the jsonl ledger used when SQLite is unavailable
	HistoryFileName = "history.jsonl"
)

// Per-cycle artifact names
const (
	PromptFile      = "prompt.txt"
	CommandFile     = "cmd.json"
	ResultsFile     = "results.json"
	AskFile         = "ask.json"
	FilesFile       = "files.json"
	HumanResultFile = "results.txt"
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
