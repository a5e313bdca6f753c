package runner

import "fmt"

// ConfigStatus tracks a configuration through its check lifecycle.
type ConfigStatus string

const (
	// StatusPending means the configuration is waiting for a worker.
	StatusPending ConfigStatus = "pending"

	// StatusRunning means the check is in flight.
	StatusRunning ConfigStatus = "running"

	// StatusPassed means the check exited zero.
	StatusPassed ConfigStatus = "passed"

	// StatusFailedFatal means the check failed and the configuration's
	// MCU family is not tolerated; it gates the run.
	StatusFailedFatal ConfigStatus = "failed_fatal"

	// StatusFailedTolerated means the check failed but the MCU family is
	// on the tolerance list; recorded, never gating.
	StatusFailedTolerated ConfigStatus = "failed_tolerated"
)

// Validate checks that the status is a known value.
func (s ConfigStatus) Validate() error {
	switch s {
	case StatusPending, StatusRunning, StatusPassed, StatusFailedFatal, StatusFailedTolerated:
		return nil
	default:
		return fmt.Errorf("invalid configuration status: %s", s)
	}
}

// IsTerminal reports whether the status is final.
func (s ConfigStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailedFatal, StatusFailedTolerated:
		return true
	default:
		return false
	}
}

// Failed reports whether the status is either failure state.
func (s ConfigStatus) Failed() bool {
	return s == StatusFailedFatal || s == StatusFailedTolerated
}

// RunStatus is the aggregate state of a matrix run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPassed    RunStatus = "passed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsActive reports whether the run is still in progress.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Summary aggregates per-configuration outcomes for a run.
type Summary struct {
	Total           int `json:"total"`
	Passed          int `json:"passed"`
	FailedFatal     int `json:"failed_fatal"`
	FailedTolerated int `json:"failed_tolerated"`
	Pending         int `json:"pending"`
}

// Verdict is the run verdict: the AND of all non-tolerated outcomes.
// Tolerated failures never gate; anything still pending does.
func (s Summary) Verdict() RunStatus {
	if s.FailedFatal > 0 {
		return RunStatusFailed
	}
	if s.Pending > 0 {
		return RunStatusCancelled
	}
	return RunStatusPassed
}
