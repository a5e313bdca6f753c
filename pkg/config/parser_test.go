package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

const firmwareSpec = `
matrix: {
	name: "firmware"

	axes: [
		{name: "mcu", members: ["esp32c3", "esp32", "nrf52840", "nrf52832"]},
		{name: "net", members: ["stubbed", "wifi", "ble"]},
		{name: "log", members: ["rtt", "usb-serial", "uart"]},
	]

	derived: [
		{axis: "mcu", name: "target", values: {
			esp32c3:  "riscv32imc-unknown-none-elf"
			esp32:    "xtensa-esp32-none-elf"
			nrf52840: "thumbv7em-none-eabihf"
			nrf52832: "thumbv7em-none-eabihf"
		}},
		{axis: "mcu", name: "toolchain", values: {
			esp32c3: "esp", esp32: "esp"
			nrf52840: "stable", nrf52832: "stable"
		}},
		{axis: "mcu", name: "boot", values: {
			nrf52840: "boot-s140", nrf52832: "boot-s132"
		}},
	]

	exclude: [
		{axis_a: "mcu", value_a: "esp32", axis_b: "log", value_b: "usb-serial"},
		{axis_a: "mcu", value_a: "esp32", axis_b: "log", value_b: "rtt"},
		{axis_a: "mcu", value_a: "nrf52832", axis_b: "log", value_b: "usb-serial"},
		{axis_a: "mcu", value_a: "nrf52840", axis_b: "net", value_b: "wifi"},
		{axis_a: "mcu", value_a: "nrf52832", axis_b: "net", value_b: "wifi"},
		{axis_a: "mcu", value_a: "nrf52840", axis_b: "net", value_b: "ble"},
		{axis_a: "mcu", value_a: "nrf52832", axis_b: "net", value_b: "ble"},
	]

	tolerated: {axis: "mcu", members: ["esp32"]}

	features: {
		baseline: ["sensor-stub", "fusion-stub"]
	}

	check: {
		command: "cargo"
		args: ["clippy", "--message-format=json"]
		path_rewrite: {from: "crates/firmware/", to: "firmware/"}
	}
}
`

func TestParser_ParseInline(t *testing.T) {
	parser := NewParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *MatrixConfig)
	}{
		{
			name:    "full firmware spec",
			content: firmwareSpec,
			checkFunc: func(t *testing.T, mc *MatrixConfig) {
				if mc.Name != "firmware" {
					t.Errorf("name = %q, want firmware", mc.Name)
				}
				if len(mc.Axes) != 3 {
					t.Fatalf("axes = %d, want 3", len(mc.Axes))
				}
				if mc.Axes[0].Name != "mcu" {
					t.Errorf("first axis = %q, want mcu (outermost)", mc.Axes[0].Name)
				}
				if len(mc.Exclude) != 7 {
					t.Errorf("exclusions = %d, want 7", len(mc.Exclude))
				}
				if mc.Tolerated == nil || len(mc.Tolerated.Members) != 1 || mc.Tolerated.Members[0] != "esp32" {
					t.Errorf("tolerated = %+v, want mcu/esp32", mc.Tolerated)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
matrix: {
	name: "broken"
	axes garbage
}
`,
			wantErr: true,
		},
		{
			name: "missing check command",
			content: `
matrix: {
	name: "nocheck"
	axes: [{name: "mcu", members: ["esp32"]}]
	check: {args: ["build"]}
}
`,
			wantErr: true,
		},
		{
			name: "exclusion names unknown member",
			content: `
matrix: {
	name: "badrule"
	axes: [
		{name: "mcu", members: ["esp32"]},
		{name: "net", members: ["wifi"]},
	]
	exclude: [{axis_a: "mcu", value_a: "esp32s3", axis_b: "net", value_b: "wifi"}]
	check: {command: "cargo"}
}
`,
			wantErr: true,
		},
		{
			name: "tolerated names unknown member",
			content: `
matrix: {
	name: "badtol"
	axes: [{name: "mcu", members: ["esp32"]}]
	tolerated: {axis: "mcu", members: ["esp8266"]}
	check: {command: "cargo"}
}
`,
			wantErr: true,
		},
		{
			name: "reflexive exclusion",
			content: `
matrix: {
	name: "reflexive"
	axes: [{name: "mcu", members: ["esp32"]}]
	exclude: [{axis_a: "mcu", value_a: "esp32", axis_b: "mcu", value_b: "esp32"}]
	check: {command: "cargo"}
}
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, err := parser.ParseInline(ctx, tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInline() failed: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, mc)
			}
		})
	}
}

func TestParser_LoadCUEFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.cue")
	if err := os.WriteFile(path, []byte(firmwareSpec), 0o644); err != nil {
		t.Fatal(err)
	}

	mc, err := NewParser().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	reg, cons, tol, fb, err := mc.ToModel()
	if err != nil {
		t.Fatalf("ToModel() failed: %v", err)
	}
	if got := len(reg.Axes()); got != 3 {
		t.Errorf("registry has %d axes, want 3", got)
	}
	if cons.Len() != 7 {
		t.Errorf("constraints has %d rules, want 7", cons.Len())
	}
	if tol == nil {
		t.Error("tolerance classifier missing")
	}
	if fb == nil {
		t.Error("feature builder missing")
	}
}

// TestParser_ExampleMatrixResolvesTo17 pins the shipped example to the
// firmware matrix: the exclusion table alone must leave exactly 17 builds
// with the per-family split 9/3/3/2, before any policy filter runs.
func TestParser_ExampleMatrixResolvesTo17(t *testing.T) {
	path := filepath.Join("..", "..", "examples", "matrix.cue")
	mc, err := NewParser().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", path, err)
	}

	reg, cons, tol, _, err := mc.ToModel()
	if err != nil {
		t.Fatalf("ToModel() failed: %v", err)
	}

	configs := matrix.ResolveAll(reg, cons)
	if len(configs) != 17 {
		t.Fatalf("resolved %d configurations, want 17", len(configs))
	}

	perMCU := make(map[string]int)
	for _, cfg := range configs {
		mcu, _ := cfg.Value("mcu")
		perMCU[mcu]++
	}
	want := map[string]int{"esp32c3": 9, "esp32": 3, "nrf52840": 3, "nrf52832": 2}
	if !reflect.DeepEqual(perMCU, want) {
		t.Fatalf("per-MCU counts = %v, want %v", perMCU, want)
	}

	for _, cfg := range configs {
		mcu, _ := cfg.Value("mcu")
		if tol.IsTolerated(cfg) != (mcu == "esp32") {
			t.Errorf("%s: tolerated = %v", cfg.ID(), tol.IsTolerated(cfg))
		}
		if _, ok := cfg.DerivedValue("target"); !ok {
			t.Errorf("%s: missing target triple", cfg.ID())
		}
		_, hasBoot := cfg.DerivedValue("boot")
		wantBoot := mcu == "nrf52840" || mcu == "nrf52832"
		if hasBoot != wantBoot {
			t.Errorf("%s: boot variant present=%v, want %v", cfg.ID(), hasBoot, wantBoot)
		}
	}
}

func TestParser_LoadYAML(t *testing.T) {
	yamlSpec := `
matrix:
  name: firmware
  axes:
    - name: mcu
      members: [esp32c3, esp32]
    - name: net
      members: [stubbed, wifi]
  exclude:
    - axis_a: mcu
      value_a: esp32
      axis_b: net
      value_b: wifi
  check:
    command: cargo
    args: [clippy]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.yaml")
	if err := os.WriteFile(path, []byte(yamlSpec), 0o644); err != nil {
		t.Fatal(err)
	}

	mc, err := NewParser().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if mc.Name != "firmware" {
		t.Errorf("name = %q, want firmware", mc.Name)
	}
	if len(mc.Axes) != 2 || len(mc.Exclude) != 1 {
		t.Errorf("decoded %d axes and %d exclusions, want 2 and 1", len(mc.Axes), len(mc.Exclude))
	}
}

func TestParser_LoadUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.toml")
	if err := os.WriteFile(path, []byte("name = 'x'"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewParser().Load(context.Background(), path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestParser_Generators(t *testing.T) {
	spec := `
matrix: {
	name: "generated"
	axes: [
		{name: "mcu", members: ["esp32c3", "nrf52840"]},
		{name: "net", members: ["stubbed"]},
	]
	check: {command: "cargo"}
	generators: [{
		name: "radio-backends"
		script: """
			members = {"net": ["wifi", "ble"]}
			exclude = [
				["mcu", "nrf52840", "net", "wifi"],
				["mcu", "nrf52840", "net", "ble"],
			]
			"""
	}]
}
`
	mc, err := NewParser().ParseInline(context.Background(), spec)
	if err != nil {
		t.Fatalf("ParseInline() failed: %v", err)
	}

	if got := mc.Axes[1].Members; len(got) != 3 {
		t.Fatalf("net axis has %d members after generation, want 3: %v", len(got), got)
	}
	if len(mc.Exclude) != 2 {
		t.Fatalf("generated %d exclusions, want 2", len(mc.Exclude))
	}

	// Generated rules pass the same cross-reference validation.
	if _, _, _, _, err := mc.ToModel(); err != nil {
		t.Fatalf("ToModel() failed on generated matrix: %v", err)
	}
}

func TestParser_GeneratorUnknownAxis(t *testing.T) {
	spec := `
matrix: {
	name: "badgen"
	axes: [{name: "mcu", members: ["esp32"]}]
	check: {command: "cargo"}
	generators: [{
		name: "bad"
		script: "members = {\"radio\": [\"lora\"]}"
	}]
}
`
	if _, err := NewParser().ParseInline(context.Background(), spec); err == nil {
		t.Fatal("expected error for generator targeting undeclared axis")
	}
}
