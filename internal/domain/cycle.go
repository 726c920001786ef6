package domain

import "time"

// CycleStatus is the terminal state of a cycle in the ledger.
type CycleStatus string

const (
	CycleDone   CycleStatus = "done"
	CycleHuman  CycleStatus = "human"
	CycleFailed CycleStatus = "failed"
	CycleExit   CycleStatus = "exit"
)

// CycleRecord is one ledger row describing a finished or failed cycle.
type CycleRecord struct {
	RunID       string      `json:"run_id"`
	CycleID     int         `json:"cycle_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Model       string      `json:"model"`
	Status      CycleStatus `json:"status"`
	Description string      `json:"description,omitempty"`
	Commands    []string    `json:"commands,omitempty"`
	Ask         string      `json:"ask,omitempty"`
	Cost        float64     `json:"cost"`
	Error       string      `json:"error,omitempty"`
}

// Prompt is an assembled generation request split into its two roles.
type Prompt struct {
	System string
	User   string
}

// Len is the total prompt size in bytes.
func (p Prompt) Len() int {
	return len(p.System) + len(p.User)
}

// String joins both roles, used for cost estimation.
func (p Prompt) String() string {
	return p.System + " " + p.User
}

// BudgetSnapshot describes spend at a point in time.
type BudgetSnapshot struct {
	SpentToday    float64
	DailyLimit    float64
	LastResetDate time.Time
}

// Remaining is the spend still available today.
func (s BudgetSnapshot) Remaining() float64 {
	if s.SpentToday >= s.DailyLimit {
		return 0
	}
	return s.DailyLimit - s.SpentToday
}
