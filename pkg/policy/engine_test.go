package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

func testConfig(mcu, net, log string) matrix.Configuration {
	return matrix.Configuration{
		Selections: []matrix.Selection{
			{Axis: "mcu", Value: mcu},
			{Axis: "net", Value: net},
			{Axis: "log", Value: log},
		},
	}
}

func TestEngine_BuiltinRadioCapability(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", true)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     matrix.Configuration
		allowed bool
	}{
		{"esp32c3 wifi allowed", testConfig("esp32c3", "wifi", "rtt"), true},
		{"esp32 ble allowed", testConfig("esp32", "ble", "uart"), true},
		{"nrf52840 wifi denied", testConfig("nrf52840", "wifi", "rtt"), false},
		{"nrf52832 wifi denied", testConfig("nrf52832", "wifi", "rtt"), false},
		{"nrf52840 ble denied", testConfig("nrf52840", "ble", "rtt"), false},
		{"nrf52840 stubbed allowed", testConfig("nrf52840", "stubbed", "rtt"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.EvaluateConfiguration(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("EvaluateConfiguration() failed: %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (violations: %+v)",
					result.Allowed, tt.allowed, result.Violations)
			}
		})
	}
}

func TestEngine_ViolationCarriesConfigID(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", true)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig("nrf52840", "wifi", "rtt")
	result, err := engine.EvaluateConfiguration(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
	if result.Violations[0].Configuration != cfg.ID() {
		t.Errorf("violation configuration = %q, want %q",
			result.Violations[0].Configuration, cfg.ID())
	}
}

func TestEngine_WarningDoesNotDeny(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", false)
	if err != nil {
		t.Fatal(err)
	}

	warn := Policy{
		Name:     "usb-serial-advice",
		Severity: SeverityWarning,
		Enabled:  true,
		Rego: `package fwmatrix.policies.advice

import rego.v1

deny contains violation if {
	input.config.selections.log == "usb-serial"
	violation := {
		"message": "usb-serial logging slows the boot path",
		"severity": "warning",
	}
}
`,
	}
	if err := engine.ReplaceLoaded([]Policy{warn}); err != nil {
		t.Fatalf("ReplaceLoaded() failed: %v", err)
	}

	result, err := engine.EvaluateConfiguration(context.Background(),
		testConfig("esp32c3", "wifi", "usb-serial"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Error("warning-severity violation must not deny the configuration")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(result.Violations))
	}
	if result.Violations[0].Severity != SeverityWarning {
		t.Errorf("severity = %s, want warning", result.Violations[0].Severity)
	}
}

func TestEngine_FilterDropsDenied(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", true)
	if err != nil {
		t.Fatal(err)
	}

	filter := engine.Filter(context.Background())
	if filter(testConfig("nrf52840", "wifi", "rtt")) {
		t.Error("filter kept a denied configuration")
	}
	if !filter(testConfig("esp32c3", "wifi", "rtt")) {
		t.Error("filter dropped an allowed configuration")
	}
}

func TestEngine_FilterDeniesOnDerivedAttribute(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", false)
	if err != nil {
		t.Fatal(err)
	}

	noEsp := Policy{
		Name:     "no-esp-toolchain",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package fwmatrix.policies.noesp

import rego.v1

deny contains violation if {
	input.config.derived.toolchain == "esp"
	violation := {
		"message": "esp toolchain builds are suspended",
		"severity": "error",
	}
}
`,
	}
	if err := engine.ReplaceLoaded([]Policy{noEsp}); err != nil {
		t.Fatalf("ReplaceLoaded() failed: %v", err)
	}

	r := matrix.NewRegistry()
	if err := r.RegisterAxis("mcu", []string{"esp32c3", "nrf52840"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDerived("mcu", "toolchain", map[string]string{
		"esp32c3":  "esp",
		"nrf52840": "stable",
	}); err != nil {
		t.Fatal(err)
	}

	// The resolver attaches derived attributes before filters run, so a
	// derived-keyed policy must drop the esp configuration here.
	got := matrix.ResolveAll(r, matrix.NewConstraints(), engine.Filter(context.Background()))
	if len(got) != 1 {
		t.Fatalf("%d configurations survived, want 1", len(got))
	}
	if mcu, _ := got[0].Value("mcu"); mcu != "nrf52840" {
		t.Errorf("survivor = %s, want nrf52840", got[0].ID())
	}
}

func TestEngine_ReplaceLoadedKeepsBuiltins(t *testing.T) {
	engine, err := NewEngine(zerolog.Nop(), "firmware", true)
	if err != nil {
		t.Fatal(err)
	}

	extra := Policy{
		Name:     "extra",
		Severity: SeverityError,
		Enabled:  true,
		Rego:     "package fwmatrix.policies.extra\n\nimport rego.v1\n\ndeny contains v if { false; v := \"never\" }\n",
	}
	if err := engine.ReplaceLoaded([]Policy{extra}); err != nil {
		t.Fatal(err)
	}
	if err := engine.ReplaceLoaded(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.GetPolicy("radio-capability"); err != nil {
		t.Error("builtin policy lost across reloads")
	}
	if _, err := engine.GetPolicy("extra"); err == nil {
		t.Error("externally loaded policy survived an empty reload")
	}
}
