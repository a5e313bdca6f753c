package runner

import (
	"context"
	"time"

	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

// Run is one execution of the full matrix.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`

	// Matrix is the name of the matrix definition that was run.
	Matrix string `json:"matrix"`

	// Status is the aggregate run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Summary aggregates the per-configuration outcomes.
	Summary Summary `json:"summary"`
}

// Outcome is the terminal result of checking one configuration.
type Outcome struct {
	// ID is the unique outcome identifier.
	ID string `json:"id"`

	// RunID is the run this outcome belongs to.
	RunID string `json:"run_id"`

	// ConfigID is the slash-joined configuration identity.
	ConfigID string `json:"config_id"`

	// FeatureKey is the feature-set key the outcome is published under.
	FeatureKey string `json:"feature_key"`

	// Status is the terminal configuration status.
	Status ConfigStatus `json:"status"`

	// MCU is the outermost axis value, kept for reporting.
	MCU string `json:"mcu"`

	// Target is the target triple the check ran against.
	Target string `json:"target"`

	// Toolchain is the toolchain variant, if any.
	Toolchain string `json:"toolchain,omitempty"`

	// ExitCode is the toolchain exit code.
	ExitCode int `json:"exit_code"`

	// Findings are the structured diagnostics with rewritten paths.
	Findings []toolchain.Finding `json:"findings,omitempty"`

	// StartedAt is when the check began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the check duration.
	Duration time.Duration `json:"duration"`
}

// Store persists runs and outcomes. Implemented by pkg/stores.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	SaveOutcome(ctx context.Context, outcome *Outcome) error
}

// Publisher receives rewritten findings keyed by feature-set key.
type Publisher interface {
	Publish(ctx context.Context, runID, featureKey string, findings []toolchain.Finding) error
}
