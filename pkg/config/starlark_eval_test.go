package config

import (
	"context"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name    string
		script  string
		input   map[string]interface{}
		wantErr bool
		check   func(*testing.T, *StarlarkResult)
	}{
		{
			name:   "exports globals",
			script: `members = {"net": ["wifi"]}`,
			check: func(t *testing.T, r *StarlarkResult) {
				members, ok := r.Output["members"].(map[string]interface{})
				if !ok {
					t.Fatalf("members = %T, want dict", r.Output["members"])
				}
				if _, ok := members["net"]; !ok {
					t.Error("net key missing from members")
				}
			},
		},
		{
			name:   "reads predeclared input",
			script: `count = len(axes["mcu"])`,
			input: map[string]interface{}{
				"axes": map[string]interface{}{
					"mcu": []string{"esp32c3", "esp32"},
				},
			},
			check: func(t *testing.T, r *StarlarkResult) {
				if got := r.Output["count"]; got != int64(2) {
					t.Errorf("count = %v, want 2", got)
				}
			},
		},
		{
			name:   "underscore globals are private",
			script: "_scratch = 1\nvisible = 2",
			check: func(t *testing.T, r *StarlarkResult) {
				if _, ok := r.Output["_scratch"]; ok {
					t.Error("_scratch leaked into output")
				}
				if _, ok := r.Output["visible"]; !ok {
					t.Error("visible missing from output")
				}
			},
		},
		{
			name:   "builtin range",
			script: `sizes = [i * 2 for i in range(3)]`,
			check: func(t *testing.T, r *StarlarkResult) {
				sizes, ok := r.Output["sizes"].([]interface{})
				if !ok || len(sizes) != 3 {
					t.Fatalf("sizes = %v, want 3-element list", r.Output["sizes"])
				}
				if sizes[2] != int64(4) {
					t.Errorf("sizes[2] = %v, want 4", sizes[2])
				}
			},
		},
		{
			name:    "syntax error",
			script:  `members = {`,
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  `x = undefined_name`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if tt.check != nil {
				tt.check(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	// Busy loop that cannot finish inside the timeout.
	script := `
x = 0
for i in range(5000):
    for j in range(5000):
        x += j
`
	_, err := evaluator.Evaluate(context.Background(), script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
