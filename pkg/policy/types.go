package policy

import (
	"time"
)

// Severity is the severity of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but do not drop
	// the configuration.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that drop the configuration from
	// the resolved matrix.
	SeverityError Severity = "error"
)

// Validate reports whether the severity is a known value.
func (s Severity) Validate() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Policy is one Rego policy with metadata.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the policy source.
	Rego string `json:"rego"`

	// Severity is the default severity for violations the policy does
	// not classify itself.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the policy participates in evaluation.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was loaded.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last reloaded.
	UpdatedAt time.Time `json:"updated_at"`

	// builtin marks policies shipped with the engine; they survive
	// reloads of the externally loaded set.
	builtin bool
}

// Violation is a single policy denial of a candidate configuration.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Configuration is the slash-joined configuration identifier.
	Configuration string `json:"configuration,omitempty"`

	// Message is the human-readable denial message.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result is the outcome of evaluating all policies against one candidate.
type Result struct {
	// Allowed is false when any violation carries error severity.
	Allowed bool `json:"allowed"`

	// Violations lists every denial, including warnings.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies names the policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document policies evaluate against. Selections and derived
// attributes are exposed as flat maps so rego rules read naturally:
//
//	input.config.selections.mcu == "nrf52840"
//	input.config.derived.target == "thumbv7em-none-eabihf"
type Input struct {
	// Config is the candidate configuration.
	Config ConfigInput `json:"config"`

	// Context carries evaluation metadata.
	Context InputContext `json:"context"`
}

// ConfigInput is the policy view of a candidate configuration.
type ConfigInput struct {
	// ID is the slash-joined configuration identifier.
	ID string `json:"id"`

	// Selections maps axis name to selected member.
	Selections map[string]string `json:"selections"`

	// Derived maps derived attribute name to value.
	Derived map[string]string `json:"derived,omitempty"`
}

// InputContext carries metadata about the evaluation.
type InputContext struct {
	// Matrix is the matrix name from the specification.
	Matrix string `json:"matrix,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
