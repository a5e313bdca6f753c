package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// Parser loads matrix specifications from CUE or YAML sources.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	evaluator *StarlarkEvaluator
	validator *validator.Validate
}

// NewParser creates a parser with the built-in schema set.
func NewParser() *Parser {
	return &Parser{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		evaluator: NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
	}
}

// Load reads a matrix specification from path and returns the fully
// validated configuration. The format is chosen by extension: .cue files
// and directories of .cue files go through the CUE pipeline, .yaml/.yml
// files through the YAML decoder. Generators run before validation, so a
// generated member or exclusion fails the same checks a declared one
// would.
func (p *Parser) Load(ctx context.Context, path string) (*MatrixConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var mc *MatrixConfig
	switch {
	case info.IsDir():
		mc, err = p.loadCUEDir(path)
	case strings.HasSuffix(path, ".cue"):
		mc, err = p.loadCUEFile(path)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		mc, err = loadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported specification format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if err := p.applyGenerators(ctx, mc); err != nil {
		return nil, err
	}
	if err := p.validate(ctx, mc); err != nil {
		return nil, err
	}
	return mc, nil
}

// ParseInline parses an inline CUE specification. Used by tests and the
// validate command's stdin mode.
func (p *Parser) ParseInline(ctx context.Context, content string) (*MatrixConfig, error) {
	val := p.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	mc, err := decodeMatrix(val, "inline")
	if err != nil {
		return nil, err
	}
	if err := p.applyGenerators(ctx, mc); err != nil {
		return nil, err
	}
	if err := p.validate(ctx, mc); err != nil {
		return nil, err
	}
	return mc, nil
}

// loadCUEFile compiles a single CUE file.
func (p *Parser) loadCUEFile(path string) (*MatrixConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	return decodeMatrix(val, path)
}

// loadCUEDir loads a directory as a CUE package, unifying all files.
func (p *Parser) loadCUEDir(dir string) (*MatrixConfig, error) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return nil, ValidationError{File: dir, Message: "no CUE files found"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	return decodeMatrix(val, dir)
}

// decodeMatrix decodes the matrix root from a CUE value. Specifications
// may nest the configuration under a top-level "matrix" field or declare
// it at the root.
func decodeMatrix(val cue.Value, source string) (*MatrixConfig, error) {
	root := val
	if nested := val.LookupPath(cue.ParsePath("matrix")); nested.Exists() {
		root = nested
	}

	var mc MatrixConfig
	if err := root.Decode(&mc); err != nil {
		return nil, ValidationError{
			File:    source,
			Message: fmt.Sprintf("failed to decode matrix: %v", err),
		}
	}
	return &mc, nil
}

// validate runs schema unification, struct-tag validation and
// cross-reference checks, in that order.
func (p *Parser) validate(ctx context.Context, mc *MatrixConfig) error {
	if err := p.schemas.ValidateAgainstSchema(ctx, "matrix", mc); err != nil {
		return err
	}

	if err := p.validator.Struct(mc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ValidationError{
				Path:    verrs[0].Namespace(),
				Message: fmt.Sprintf("failed %q constraint", verrs[0].Tag()),
			}
		}
		return err
	}

	// Cross-reference checks: building the model surfaces unknown axes,
	// unknown members, duplicates and reflexive exclusions.
	if _, _, _, _, err := mc.ToModel(); err != nil {
		return ValidationError{Message: err.Error()}
	}
	return nil
}

// convertCUEErrors flattens a CUE error into the first positioned
// ValidationError. CUE errors usually cascade from one root cause; the
// first position is the actionable one.
func convertCUEErrors(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	e := errs[0]
	ve := ValidationError{Message: cueerrors.Details(e, nil)}
	if pos := cueerrors.Positions(e); len(pos) > 0 {
		ve.File = pos[0].Filename()
		ve.Line = pos[0].Line()
		ve.Column = pos[0].Column()
	}
	return ve
}
