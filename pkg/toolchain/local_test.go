package toolchain

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

func sampleInvocation() Invocation {
	return Invocation{
		Config: matrix.Configuration{
			Selections: []matrix.Selection{
				{Axis: "mcu", Value: "esp32"},
				{Axis: "net", Value: "wifi"},
				{Axis: "log", Value: "uart"},
			},
		},
		Features: matrix.FeatureSet{
			Tokens: []string{"esp32", "wifi", "uart", "sensor-stub", "fusion-stub"},
		},
		Target:    "xtensa-esp32-none-elf",
		Toolchain: "esp",
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name  string
		fixed []string
		inv   Invocation
		want  []string
	}{
		{
			name:  "esp toolchain with target and features",
			fixed: []string{"clippy", "--message-format=json"},
			inv:   sampleInvocation(),
			want: []string{
				"+esp", "clippy", "--message-format=json",
				"--target", "xtensa-esp32-none-elf",
				"--no-default-features",
				"--features", "esp32,wifi,uart,sensor-stub,fusion-stub",
			},
		},
		{
			name:  "default toolchain omits the plus prefix",
			fixed: []string{"check"},
			inv: Invocation{
				Features: matrix.FeatureSet{Tokens: []string{"nrf52840", "stubbed"}},
				Target:   "thumbv7em-none-eabihf",
			},
			want: []string{
				"check",
				"--target", "thumbv7em-none-eabihf",
				"--no-default-features",
				"--features", "nrf52840,stubbed",
			},
		},
		{
			name:  "empty feature set omits the features flag",
			fixed: []string{"check"},
			inv:   Invocation{Target: "thumbv7em-none-eabihf"},
			want: []string{
				"check",
				"--target", "thumbv7em-none-eabihf",
				"--no-default-features",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(tt.fixed, tt.inv)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvocation_CacheKey(t *testing.T) {
	inv := sampleInvocation()
	want := "esp32,wifi,uart,sensor-stub,fusion-stub@xtensa-esp32-none-elf"
	if got := inv.CacheKey(); got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestLocalInvoker_NonZeroExitIsOutcome(t *testing.T) {
	// A failing check is a domain outcome, not an invoker error.
	invoker := NewLocalInvoker(zerolog.Nop(), "sh", []string{"-c", "exit 3", "--"})

	outcome, err := invoker.Check(context.Background(), Invocation{})
	if err != nil {
		t.Fatalf("Check() returned infrastructure error for non-zero exit: %v", err)
	}
	if outcome.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", outcome.ExitCode)
	}
	if outcome.Succeeded() {
		t.Error("Succeeded() = true for exit code 3")
	}
}

func TestLocalInvoker_MissingCommandIsError(t *testing.T) {
	invoker := NewLocalInvoker(zerolog.Nop(), "definitely-not-a-real-binary", nil)

	if _, err := invoker.Check(context.Background(), Invocation{}); err == nil {
		t.Fatal("expected infrastructure error for missing command")
	}
}
