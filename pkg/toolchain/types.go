package toolchain

import (
	"context"
	"time"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

// Invocation is one check of one resolved configuration.
type Invocation struct {
	// Config is the configuration under check.
	Config matrix.Configuration

	// Features is the flattened feature set passed to the toolchain.
	Features matrix.FeatureSet

	// Target is the compilation target triple.
	Target string

	// Toolchain is the toolchain variant ("esp", "stable", ...). Empty
	// means the default toolchain.
	Toolchain string

	// WorkDir is the directory the command runs in.
	WorkDir string

	// Timeout bounds the invocation. Zero disables the bound.
	Timeout time.Duration
}

// CacheKey identifies the artifact cache slice this invocation writes to.
// Two invocations with the same key must not run concurrently.
func (inv Invocation) CacheKey() string {
	return inv.Features.Key() + "@" + inv.Target
}

// Outcome is the result of one invocation.
type Outcome struct {
	// ExitCode is the toolchain's exit code.
	ExitCode int

	// Findings are the parsed diagnostics.
	Findings []Finding

	// RawOutput is the unparsed stdout, kept for reporting on parse
	// failures.
	RawOutput string

	// Stderr is the toolchain's stderr.
	Stderr string

	// StartedAt is when the command started.
	StartedAt time.Time

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Succeeded reports whether the toolchain exited cleanly.
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0
}

// FindingLevel classifies a diagnostic.
type FindingLevel string

const (
	// LevelError is a hard diagnostic that fails the check.
	LevelError FindingLevel = "error"

	// LevelWarning is a soft diagnostic.
	LevelWarning FindingLevel = "warning"

	// LevelNote is an informational diagnostic.
	LevelNote FindingLevel = "note"
)

// Finding is one diagnostic emitted by the toolchain.
type Finding struct {
	// File is the source file path, relative to the checked tree.
	File string `json:"file"`

	// Line is the 1-indexed line of the primary span.
	Line int `json:"line"`

	// Column is the 1-indexed column of the primary span.
	Column int `json:"column"`

	// Level is the diagnostic level.
	Level FindingLevel `json:"level"`

	// Code is the lint or error code, when present.
	Code string `json:"code,omitempty"`

	// Message is the diagnostic message.
	Message string `json:"message"`
}

// Invoker runs the check command for one configuration.
type Invoker interface {
	// Check runs the toolchain for the invocation. The returned error
	// covers infrastructure failures only (spawn failure, transport
	// loss, timeout); a non-zero exit is reported through the Outcome.
	Check(ctx context.Context, inv Invocation) (*Outcome, error)
}
