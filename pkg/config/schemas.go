package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for specification validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry pre-loaded with the built-in
// matrix schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	// The built-in schema is a compile-time constant; a failure here is
	// a programming error, not user input.
	if err := sr.RegisterSchema("matrix", builtinMatrixSchema); err != nil {
		panic(fmt.Sprintf("builtin matrix schema does not compile: %v", err))
	}
	return sr
}

// RegisterSchema compiles and registers a CUE schema under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val.LookupPath(cue.ParsePath("#" + capitalize(name)))
	if !sr.schemas[name].Exists() {
		sr.schemas[name] = val
	}
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema by
// unification.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, name string, data interface{}) error {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// builtinMatrixSchema constrains the shape of a matrix specification.
// Struct-tag validation catches missing fields; the schema catches shape
// errors CUE expresses better, like an axis with a non-string member.
const builtinMatrixSchema = `
#Matrix: {
	// name identifies the matrix in reports and metrics
	name: string & !=""

	// axes are the primary dimensions, outermost first
	axes: [...#Axis] & [_, ...]

	derived?: [...#Derived]
	exclude?: [...#Exclude]

	tolerated?: {
		axis:    string & !=""
		members: [...string] & [_, ...]
	}

	features?: {
		boot_derived?: string
		baseline?: [...string]
	}

	check: {
		command: string & !=""
		args?: [...string]
		work_dir?:          string
		target_derived?:    string
		toolchain_derived?: string
		path_rewrite?: {
			from?: string
			to?:   string
		}
		workers?:         int & >=0
		timeout_seconds?: int & >=0
		remote?: {
			host:             string & !=""
			port?:            int & >=0 & <=65535
			user:             string & !=""
			key_file:         string & !=""
			work_dir:         string & !=""
			diagnostics_path: string & !=""
		}
	}

	policy?: {
		enabled: bool
		paths?: [...string]
		disable_builtin?: bool
	}

	generators?: [...{
		name:   string & !=""
		script: string & !=""
	}]

	...
}

#Axis: {
	name:    string & =~"^[a-z][a-z0-9_-]*$"
	members: [...string] & [_, ...]
}

#Derived: {
	axis: string & !=""
	name: string & =~"^[a-z][a-z0-9_-]*$"
	values: {[string]: string}
}

#Exclude: {
	axis_a:  string & !=""
	value_a: string & !=""
	axis_b:  string & !=""
	value_b: string & !=""
}
`
