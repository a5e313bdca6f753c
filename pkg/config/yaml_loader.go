package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRoot mirrors the optional top-level "matrix" nesting accepted by
// the CUE path.
type yamlRoot struct {
	Matrix *MatrixConfig `yaml:"matrix"`
}

// loadYAML decodes a YAML matrix specification. Unknown fields are
// rejected so a typo'd key fails loudly instead of silently dropping a
// rule.
func loadYAML(path string) (*MatrixConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var root yamlRoot
	if err := dec.Decode(&root); err == nil && root.Matrix != nil {
		return root.Matrix, nil
	}

	// Not nested: decode the document again at the root.
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}
	dec = yaml.NewDecoder(f)
	dec.KnownFields(true)

	var mc MatrixConfig
	if err := dec.Decode(&mc); err != nil {
		return nil, ValidationError{
			File:    path,
			Message: fmt.Sprintf("failed to decode matrix: %v", err),
		}
	}
	return &mc, nil
}
