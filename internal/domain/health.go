package domain

// HealthStatus is the outcome of one doctor check.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthWarn  HealthStatus = "warn"
	HealthError HealthStatus = "error"
)

// HealthCheck is a single diagnostic result.
type HealthCheck struct {
	Name    string
	Status  HealthStatus
	Details string
}

// HealthReport is the ordered result of a doctor run.
type HealthReport struct {
	Checks []HealthCheck
}

// Failed reports whether any check ended in error. Warnings do not fail a
// report: an engine can run with them.
func (r HealthReport) Failed() bool {
	return r.Count(HealthError) > 0
}

// Count returns how many checks ended with the given status.
func (r HealthReport) Count(status HealthStatus) int {
	n := 0
	for _, check := range r.Checks {
		if check.Status == status {
			n++
		}
	}
	return n
}
