package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
	"github.com/fwmatrix/fwmatrix/pkg/telemetry"
)

// Engine compiles and evaluates deny policies against candidate
// configurations.
type Engine struct {
	mu         sync.RWMutex
	policies   map[string]*compiledPolicy
	logger     zerolog.Logger
	matrixName string
}

// compiledPolicy is a parsed policy with its deny query path.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    string
	compiled time.Time
}

// NewEngine creates an engine pre-loaded with the built-in policies.
// Set includeBuiltin false when the specification disables them.
func NewEngine(logger zerolog.Logger, matrixName string, includeBuiltin bool) (*Engine, error) {
	e := &Engine{
		policies:   make(map[string]*compiledPolicy),
		logger:     logger.With().Str("component", "policy-engine").Logger(),
		matrixName: matrixName,
	}

	if includeBuiltin {
		builtins := GetBuiltinPolicies()
		for i := range builtins {
			if err := e.compileAndStore(&builtins[i]); err != nil {
				return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
			}
		}
		e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	}

	return e, nil
}

// LoadPolicies loads and compiles .rego policy files from paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.ReplaceLoaded(policies)
}

// ReplaceLoaded swaps in a freshly loaded policy set, keeping built-ins.
// Used by the filesystem watcher on reload.
func (e *Engine) ReplaceLoaded(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cp := range e.policies {
		if !cp.policy.builtin {
			delete(e.policies, name)
		}
	}
	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// EvaluateConfiguration runs every enabled policy against one candidate.
func (e *Engine) EvaluateConfiguration(ctx context.Context, cfg matrix.Configuration) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := inputFor(cfg, e.matrixName)
	result := &Result{
		Allowed:     true,
		EvaluatedAt: time.Now(),
	}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", cp.policy.Name, err)
		}
		for i := range violations {
			violations[i].Configuration = cfg.ID()
			if violations[i].Severity == SeverityError {
				result.Allowed = false
			}
		}
		result.Violations = append(result.Violations, violations...)
	}

	return result, nil
}

// Filter adapts the engine into a resolver filter. Denied candidates are
// dropped; warning violations are logged and the candidate kept. An
// evaluation error fails open with a log line so a broken policy file
// cannot silently shrink the matrix.
func (e *Engine) Filter(ctx context.Context) matrix.Filter {
	return func(cfg matrix.Configuration) bool {
		result, err := e.EvaluateConfiguration(ctx, cfg)
		if err != nil {
			e.logger.Error().Err(err).Str("config", cfg.ID()).
				Msg("Policy evaluation failed, keeping configuration")
			return true
		}
		tel := telemetry.FromTelemetryContext(ctx)
		for _, v := range result.Violations {
			evt := e.logger.Warn()
			if v.Severity == SeverityError {
				evt = e.logger.Info()
			}
			evt.Str("policy", v.Policy).Str("config", cfg.ID()).
				Str("severity", string(v.Severity)).
				Msg(v.Message)
			if tel != nil {
				tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
				_ = tel.Events.PublishPolicyViolation(cfg.ID(), v.Policy, v.Message)
			}
		}
		return result.Allowed
	}
}

// evaluatePolicy runs one policy's deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(cp.query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.violationFrom(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// violationFrom builds a Violation from one deny result. Policies may
// return plain strings or objects with message/severity fields.
func (e *Engine) violationFrom(p *Policy, result interface{}) Violation {
	v := Violation{
		Policy:     p.Name,
		Severity:   p.Severity,
		DetectedAt: time.Now(),
	}

	switch val := result.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok && Severity(sev).Validate() {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// compileAndStore parses a policy and records its deny query path.
// Caller holds the write lock (or is still single-goroutine in NewEngine).
func (e *Engine) compileAndStore(p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	e.policies[p.Name] = &compiledPolicy{
		policy:   p,
		module:   module,
		query:    fmt.Sprintf("data.%s.deny", extractPackageName(p.Rego)),
		compiled: time.Now(),
	}
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// inputFor converts a configuration into the policy input document.
func inputFor(cfg matrix.Configuration, matrixName string) *Input {
	selections := make(map[string]string, len(cfg.Selections))
	for _, sel := range cfg.Selections {
		selections[sel.Axis] = sel.Value
	}
	return &Input{
		Config: ConfigInput{
			ID:         cfg.ID(),
			Selections: selections,
			Derived:    cfg.Derived,
		},
		Context: InputContext{
			Matrix:    matrixName,
			Timestamp: time.Now(),
		},
	}
}

// extractPackageName reads the package declaration from Rego source.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "fwmatrix.policies"
}
