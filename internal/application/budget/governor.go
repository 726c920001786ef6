// Package budget gates paid generation calls against a daily spend ceiling.
package budget

import (
	"strings"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
)

// Governor tracks today's estimated spend. It is owned by the cycle loop and
// is not safe for concurrent use.
type Governor struct {
	limit     float64
	pricing   domain.Pricing
	now       func() time.Time
	spent     float64
	lastReset time.Time
}

// NewGovernor creates a governor; a nil clock uses time.Now.
func NewGovernor(limit float64, pricing domain.Pricing, now func() time.Time) *Governor {
	if now == nil {
		now = time.Now
	}
	return &Governor{
		limit:     limit,
		pricing:   pricing,
		now:       now,
		lastReset: dateOf(now()),
	}
}

// EstimateTokens approximates a token count from whitespace-delimited words.
func EstimateTokens(text string) int {
	return CountWords(text) + domain.TokenOverhead
}

// CountWords counts whitespace-delimited words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EstimateCost prices a token count at the summed input and output rate.
func (g *Governor) EstimateCost(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) * g.pricing.PerToken()
}

// UsageCost prices reported token usage. Without usage it falls back to word counts
// of the exchanged text.
func (g *Governor) UsageCost(inputTokens, outputTokens int, prompt, response string) float64 {
	if inputTokens > 0 || outputTokens > 0 {
		return float64(inputTokens)*g.pricing.InputPerToken + float64(outputTokens)*g.pricing.OutputPerToken
	}
	return g.EstimateCost(CountWords(prompt) + CountWords(response))
}

// CanAfford reports whether cost fits in what is left of today's budget.
func (g *Governor) CanAfford(cost float64) bool {
	return g.spent+cost <= g.limit
}

// RecordSpend adds a cost to today's total.
func (g *Governor) RecordSpend(cost float64) {
	if cost > 0 {
		g.spent += cost
	}
}

// Restore seeds today's total, used when resuming after a restart.
func (g *Governor) Restore(spent float64) {
	if spent > 0 {
		g.spent = spent
	}
}

// MaybeResetForNewDay zeroes the spend when the calendar day has changed since
// the last reset and reports whether it did.
func (g *Governor) MaybeResetForNewDay() bool {
	today := dateOf(g.now())
	if !today.After(g.lastReset) {
		return false
	}
	g.spent = 0
	g.lastReset = today
	return true
}

// Snapshot describes the current budget state.
func (g *Governor) Snapshot() domain.BudgetSnapshot {
	return domain.BudgetSnapshot{
		SpentToday:    g.spent,
		DailyLimit:    g.limit,
		LastResetDate: g.lastReset,
	}
}

// StartOfDay returns local midnight of t.
func StartOfDay(t time.Time) time.Time {
	return dateOf(t)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
