package config

import (
	"fmt"
	"time"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

// MatrixConfig is the root of the declarative matrix specification.
type MatrixConfig struct {
	// Name identifies the matrix (used in reports and metrics).
	Name string `json:"name" yaml:"name" validate:"required"`

	// Axes declares the primary axes in resolution order: the first axis
	// is the outermost loop of the cartesian product.
	Axes []AxisConfig `json:"axes" yaml:"axes" validate:"required,min=1,dive"`

	// Derived declares per-member derived attributes (target triple,
	// toolchain variant, bootloader variant).
	Derived []DerivedConfig `json:"derived,omitempty" yaml:"derived,omitempty" validate:"dive"`

	// Exclude is the pairwise incompatibility table.
	Exclude []ExcludeConfig `json:"exclude,omitempty" yaml:"exclude,omitempty" validate:"dive"`

	// Tolerated lists the axis members whose failures must not gate the
	// overall run.
	Tolerated *ToleratedConfig `json:"tolerated,omitempty" yaml:"tolerated,omitempty"`

	// Features configures the feature-set flattening.
	Features FeaturesConfig `json:"features" yaml:"features"`

	// Check configures the external build/lint invocation.
	Check CheckConfig `json:"check" yaml:"check" validate:"required"`

	// Policy configures Rego-based exclusion policies.
	Policy *PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Generators are Starlark scripts run before validation to extend the
	// matrix procedurally.
	Generators []GeneratorConfig `json:"generators,omitempty" yaml:"generators,omitempty" validate:"dive"`
}

// AxisConfig declares one primary axis.
type AxisConfig struct {
	// Name is the axis name (e.g. "mcu").
	Name string `json:"name" yaml:"name" validate:"required"`

	// Members are the selectable values, in order.
	Members []string `json:"members" yaml:"members" validate:"required,min=1"`
}

// DerivedConfig declares a derived attribute: a mapping from members of one
// axis to dependent values. The mapping may be partial.
type DerivedConfig struct {
	// Axis is the source axis.
	Axis string `json:"axis" yaml:"axis" validate:"required"`

	// Name is the attribute name (e.g. "target", "toolchain", "boot").
	Name string `json:"name" yaml:"name" validate:"required"`

	// Values maps axis members to the derived value.
	Values map[string]string `json:"values" yaml:"values" validate:"required,min=1"`
}

// ExcludeConfig is one forbidden co-occurrence of two axis values.
type ExcludeConfig struct {
	AxisA  string `json:"axis_a" yaml:"axis_a" validate:"required"`
	ValueA string `json:"value_a" yaml:"value_a" validate:"required"`
	AxisB  string `json:"axis_b" yaml:"axis_b" validate:"required"`
	ValueB string `json:"value_b" yaml:"value_b" validate:"required"`
}

// ToleratedConfig is the soft-fail allowlist.
type ToleratedConfig struct {
	// Axis is the axis whose members are tolerated (in practice "mcu").
	Axis string `json:"axis" yaml:"axis" validate:"required"`

	// Members are the tolerated values.
	Members []string `json:"members" yaml:"members" validate:"required,min=1"`
}

// FeaturesConfig controls feature-set flattening.
type FeaturesConfig struct {
	// BootDerived names the derived attribute appended after the axis
	// values when a configuration defines it (default "boot").
	BootDerived string `json:"boot_derived,omitempty" yaml:"boot_derived,omitempty"`

	// Baseline is the fixed trailing stub feature list.
	Baseline []string `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// CheckConfig configures the external build/lint step.
type CheckConfig struct {
	// Command is the toolchain entry point (e.g. "cargo").
	Command string `json:"command" yaml:"command" validate:"required"`

	// Args are the fixed arguments preceding the generated target and
	// feature flags (e.g. ["clippy", "--message-format=json"]).
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// WorkDir is the directory the command runs in, relative to the
	// repository root.
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`

	// TargetDerived names the derived attribute carrying the compilation
	// target triple (default "target").
	TargetDerived string `json:"target_derived,omitempty" yaml:"target_derived,omitempty"`

	// ToolchainDerived names the derived attribute selecting the
	// toolchain variant (default "toolchain").
	ToolchainDerived string `json:"toolchain_derived,omitempty" yaml:"toolchain_derived,omitempty"`

	// PathRewrite is the fixed prefix substitution applied to finding
	// file paths before publication.
	PathRewrite RewriteConfig `json:"path_rewrite" yaml:"path_rewrite"`

	// Workers caps the number of configurations checked concurrently.
	// Zero means one worker per configuration.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`

	// TimeoutSeconds bounds a single configuration's check. Zero disables
	// the bound.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"gte=0"`

	// Remote, when set, runs the check on a remote build host over SSH
	// instead of locally.
	Remote *RemoteConfig `json:"remote,omitempty" yaml:"remote,omitempty"`
}

// Timeout returns the per-configuration check timeout.
func (c CheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RewriteConfig is a fixed path-prefix substitution: a finding path
// beginning with From is republished with the From prefix replaced by To.
// An empty From prefixes every path with To.
type RewriteConfig struct {
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`
}

// RemoteConfig describes a remote build host.
type RemoteConfig struct {
	// Host is the SSH host name or address.
	Host string `json:"host" yaml:"host" validate:"required"`

	// Port is the SSH port (default 22).
	Port int `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`

	// User is the SSH user.
	User string `json:"user" yaml:"user" validate:"required"`

	// KeyFile is the path to the private key.
	KeyFile string `json:"key_file" yaml:"key_file" validate:"required"`

	// WorkDir is the firmware tree location on the remote host.
	WorkDir string `json:"work_dir" yaml:"work_dir" validate:"required"`

	// DiagnosticsPath is where the remote check writes its JSON
	// diagnostics, fetched back via SFTP after the run.
	DiagnosticsPath string `json:"diagnostics_path" yaml:"diagnostics_path" validate:"required"`
}

// PolicyConfig configures policy-driven exclusions.
type PolicyConfig struct {
	// Enabled turns policy evaluation on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Paths lists .rego policy files to load.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// DisableBuiltin turns off the embedded radio-capability policy.
	DisableBuiltin bool `json:"disable_builtin,omitempty" yaml:"disable_builtin,omitempty"`
}

// GeneratorConfig is one Starlark matrix generator.
type GeneratorConfig struct {
	// Name identifies the generator in logs and errors.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Script is the inline Starlark source. The script sees the declared
	// axes and may export `members` (axis -> extra members) and `exclude`
	// (extra exclusion pairs).
	Script string `json:"script" yaml:"script" validate:"required"`
}

// ValidationError is a specification error with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the configuration path to the error (e.g. "axes[1].members").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ToModel builds the read-only resolution model from the specification:
// the axis registry, the constraint set, the tolerance classifier and the
// feature builder. Cross-reference errors (an exclusion or tolerance entry
// naming an unknown axis or member) are specification errors and abort
// initialization.
func (mc *MatrixConfig) ToModel() (*matrix.Registry, *matrix.Constraints, *matrix.Tolerance, *matrix.FeatureBuilder, error) {
	reg := matrix.NewRegistry()
	for _, axis := range mc.Axes {
		if err := reg.RegisterAxis(axis.Name, axis.Members); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("axis %s: %w", axis.Name, err)
		}
	}
	for _, d := range mc.Derived {
		if err := reg.RegisterDerived(d.Axis, d.Name, d.Values); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("derived %s.%s: %w", d.Axis, d.Name, err)
		}
	}

	cons := matrix.NewConstraints()
	for i, ex := range mc.Exclude {
		for _, side := range []struct{ axis, value string }{
			{ex.AxisA, ex.ValueA},
			{ex.AxisB, ex.ValueB},
		} {
			if !reg.HasMember(side.axis, side.value) {
				return nil, nil, nil, nil, fmt.Errorf(
					"exclude[%d]: %s=%s: %w", i, side.axis, side.value, matrix.ErrUnknownMember)
			}
		}
		if err := cons.AddExclusion(ex.AxisA, ex.ValueA, ex.AxisB, ex.ValueB); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("exclude[%d]: %w", i, err)
		}
	}

	var tol *matrix.Tolerance
	if mc.Tolerated != nil {
		for _, m := range mc.Tolerated.Members {
			if !reg.HasMember(mc.Tolerated.Axis, m) {
				return nil, nil, nil, nil, fmt.Errorf(
					"tolerated: %s=%s: %w", mc.Tolerated.Axis, m, matrix.ErrUnknownMember)
			}
		}
		tol = matrix.NewTolerance(mc.Tolerated.Axis, mc.Tolerated.Members)
	}

	axisOrder := make([]string, len(mc.Axes))
	for i, axis := range mc.Axes {
		axisOrder[i] = axis.Name
	}
	bootDerived := mc.Features.BootDerived
	if bootDerived == "" {
		bootDerived = "boot"
	}
	fb := matrix.NewFeatureBuilder(axisOrder, bootDerived, mc.Features.Baseline)

	return reg, cons, tol, fb, nil
}

// TargetDerived returns the name of the target-triple derived attribute.
func (c CheckConfig) TargetDerivedName() string {
	if c.TargetDerived != "" {
		return c.TargetDerived
	}
	return "target"
}

// ToolchainDerivedName returns the name of the toolchain derived attribute.
func (c CheckConfig) ToolchainDerivedName() string {
	if c.ToolchainDerived != "" {
		return c.ToolchainDerived
	}
	return "toolchain"
}
