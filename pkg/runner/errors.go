package runner

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a run error for gating and logging decisions.
type ErrorClass string

const (
	// ErrorClassConfig indicates an initialization problem: bad matrix
	// definition, missing derived attribute, unusable invoker. Fatal
	// before any check runs.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassBuild indicates a failed check on a non-tolerated
	// configuration. Gates the run.
	ErrorClassBuild ErrorClass = "build"

	// ErrorClassTolerated indicates a failed check on a tolerated
	// configuration. Recorded, never gating.
	ErrorClassTolerated ErrorClass = "tolerated"

	// ErrorClassReporting indicates a failure while publishing findings.
	// Logged; never changes a check outcome.
	ErrorClassReporting ErrorClass = "reporting"
)

// Error is a classified runner error with configuration context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Config is the configuration ID the error relates to, if any.
	Config string `json:"config,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Config != "" {
		return fmt.Sprintf("[%s] %s (config=%s): %s", e.Class, e.Message, e.Config, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewConfigError creates a fatal initialization error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewBuildFailure creates a gating build failure.
func NewBuildFailure(message string, err error) *Error {
	return &Error{Class: ErrorClassBuild, Message: message, Err: err}
}

// NewToleratedFailure creates a non-gating build failure.
func NewToleratedFailure(message string, err error) *Error {
	return &Error{Class: ErrorClassTolerated, Message: message, Err: err}
}

// NewReportingError creates a reporting error.
func NewReportingError(message string, err error) *Error {
	return &Error{Class: ErrorClassReporting, Message: message, Err: err}
}

// WithConfig adds configuration context to an error.
func (e *Error) WithConfig(configID string) *Error {
	e.Config = configID
	return e
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// IsConfigError returns true if the error is a fatal initialization error.
func IsConfigError(err error) bool {
	return hasClass(err, ErrorClassConfig)
}

// IsBuildFailure returns true if the error is a gating build failure.
func IsBuildFailure(err error) bool {
	return hasClass(err, ErrorClassBuild)
}

// IsToleratedFailure returns true if the error is a tolerated failure.
func IsToleratedFailure(err error) bool {
	return hasClass(err, ErrorClassTolerated)
}

// IsReportingError returns true if the error is a reporting error.
func IsReportingError(err error) bool {
	return hasClass(err, ErrorClassReporting)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
