package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/config"
	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

// fakeInvoker returns canned outcomes keyed by configuration ID.
type fakeInvoker struct {
	mu       sync.Mutex
	failIDs  map[string]bool
	infraIDs map[string]bool
	output   string
	findings []toolchain.Finding
	calls    []string
}

func (f *fakeInvoker) Check(_ context.Context, inv toolchain.Invocation) (*toolchain.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv.Config.ID())
	f.mu.Unlock()

	if f.infraIDs[inv.Config.ID()] {
		return nil, errors.New("ssh: connection refused")
	}

	out := &toolchain.Outcome{
		StartedAt: time.Now(),
		Duration:  time.Millisecond,
		RawOutput: f.output,
		Findings:  f.findings,
	}
	if f.failIDs[inv.Config.ID()] {
		out.ExitCode = 101
	}
	return out, nil
}

type memStore struct {
	mu       sync.Mutex
	runs     []Run
	outcomes []Outcome
}

func (s *memStore) SaveRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStore) SaveOutcome(_ context.Context, o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, *o)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string, []toolchain.Finding) error {
	return errors.New("report sink unavailable")
}

func firmwareConfig() *config.MatrixConfig {
	return &config.MatrixConfig{
		Name: "firmware",
		Axes: []config.AxisConfig{
			{Name: "mcu", Members: []string{"esp32c3", "esp32", "nrf52840", "nrf52832"}},
			{Name: "net", Members: []string{"stubbed", "wifi", "ble"}},
			{Name: "log", Members: []string{"rtt", "usb-serial", "uart"}},
		},
		Derived: []config.DerivedConfig{
			{Axis: "mcu", Name: "target", Values: map[string]string{
				"esp32c3":  "riscv32imc-esp-espidf",
				"esp32":    "xtensa-esp32-none-elf",
				"nrf52840": "thumbv7em-none-eabihf",
				"nrf52832": "thumbv7em-none-eabihf",
			}},
			{Axis: "mcu", Name: "toolchain", Values: map[string]string{
				"esp32c3": "esp",
				"esp32":   "esp",
			}},
		},
		Exclude: []config.ExcludeConfig{
			{AxisA: "mcu", ValueA: "esp32", AxisB: "log", ValueB: "usb-serial"},
			{AxisA: "mcu", ValueA: "esp32", AxisB: "log", ValueB: "rtt"},
			{AxisA: "mcu", ValueA: "nrf52832", AxisB: "log", ValueB: "usb-serial"},
			{AxisA: "mcu", ValueA: "nrf52840", AxisB: "net", ValueB: "wifi"},
			{AxisA: "mcu", ValueA: "nrf52832", AxisB: "net", ValueB: "wifi"},
			{AxisA: "mcu", ValueA: "nrf52840", AxisB: "net", ValueB: "ble"},
			{AxisA: "mcu", ValueA: "nrf52832", AxisB: "net", ValueB: "ble"},
		},
		Tolerated: &config.ToleratedConfig{Axis: "mcu", Members: []string{"esp32"}},
		Features: config.FeaturesConfig{
			Baseline: []string{"sensor-stub", "fusion-stub"},
		},
		Check: config.CheckConfig{
			Command: "cargo",
			Args:    []string{"clippy", "--message-format=json"},
			PathRewrite: config.RewriteConfig{
				From: "/build/fw/",
				To:   "firmware/",
			},
			Workers: 4,
		},
	}
}

func newTestRunner(t *testing.T, inv toolchain.Invoker, opts ...Option) *Runner {
	t.Helper()
	r, err := New(zerolog.Nop(), firmwareConfig(), inv, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestRunner_AllPass(t *testing.T) {
	inv := &fakeInvoker{}
	store := &memStore{}
	r := newTestRunner(t, inv, WithStore(store))

	run, outcomes, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != RunStatusPassed {
		t.Errorf("run status = %s, want passed", run.Status)
	}
	if len(outcomes) != 17 {
		t.Fatalf("got %d outcomes, want 17", len(outcomes))
	}
	if run.Summary.Passed != 17 || run.Summary.Pending != 0 {
		t.Errorf("summary = %+v", run.Summary)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// Initial and final run state both persisted.
	if len(store.runs) != 2 {
		t.Errorf("store saw %d run saves, want 2", len(store.runs))
	}
	if len(store.outcomes) != 17 {
		t.Errorf("store saw %d outcomes, want 17", len(store.outcomes))
	}
}

func TestRunner_ToleratedFailuresDoNotGate(t *testing.T) {
	// All three esp32 configurations fail; esp32 is tolerated.
	inv := &fakeInvoker{failIDs: map[string]bool{
		"esp32/stubbed/uart": true,
		"esp32/wifi/uart":    true,
		"esp32/ble/uart":     true,
	}}
	r := newTestRunner(t, inv)

	run, outcomes, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != RunStatusPassed {
		t.Errorf("run status = %s, want passed (tolerated failures never gate)", run.Status)
	}
	if run.Summary.FailedTolerated != 3 || run.Summary.Passed != 14 {
		t.Errorf("summary = %+v, want 3 tolerated / 14 passed", run.Summary)
	}

	for _, o := range outcomes {
		if inv.failIDs[o.ConfigID] && o.Status != StatusFailedTolerated {
			t.Errorf("outcome %s status = %s, want failed_tolerated", o.ConfigID, o.Status)
		}
	}
}

func TestRunner_FatalFailureGatesRun(t *testing.T) {
	inv := &fakeInvoker{failIDs: map[string]bool{
		"esp32c3/stubbed/rtt": true,
	}}
	r := newTestRunner(t, inv)

	run, _, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v (a failed check is a verdict, not an error)", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("run status = %s, want failed", run.Status)
	}
	if run.Summary.FailedFatal != 1 {
		t.Errorf("summary = %+v, want 1 fatal", run.Summary)
	}
}

func TestRunner_InfrastructureErrorCancelsRun(t *testing.T) {
	cfg := firmwareConfig()
	cfg.Check.Workers = 1
	inv := &fakeInvoker{infraIDs: map[string]bool{
		"esp32c3/stubbed/rtt": true, // first configuration in resolution order
	}}
	r, err := New(zerolog.Nop(), cfg, inv)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run, outcomes, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected infrastructure error")
	}
	if !IsBuildFailure(err) {
		t.Errorf("error class = %v, want build", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("run status = %s, want failed", run.Status)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes after first-config cancellation, want 0", len(outcomes))
	}
	if run.Summary.Pending != 17 {
		t.Errorf("pending = %d, want 17", run.Summary.Pending)
	}
}

func TestRunner_ReportingErrorNeverChangesOutcome(t *testing.T) {
	inv := &fakeInvoker{
		output: `{"reason":"compiler-message"}`,
		findings: []toolchain.Finding{
			{File: "/build/fw/src/main.rs", Line: 1, Level: toolchain.LevelWarning, Message: "w"},
		},
	}
	cfg := firmwareConfig()
	rep := NewReporter(zerolog.Nop(), cfg.Check.PathRewrite, failingPublisher{})
	r, err := New(zerolog.Nop(), cfg, inv, WithReporter(rep))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run, outcomes, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != RunStatusPassed {
		t.Errorf("run status = %s, want passed despite reporting failures", run.Status)
	}

	// Paths are still rewritten on the recorded outcome.
	for _, o := range outcomes {
		for _, f := range o.Findings {
			if !strings.HasPrefix(f.File, "firmware/") {
				t.Fatalf("finding path %q not rewritten", f.File)
			}
		}
	}
}

func TestRunner_NoOutputSkipsPublishing(t *testing.T) {
	pub := &countingPublisher{}
	cfg := firmwareConfig()
	rep := NewReporter(zerolog.Nop(), cfg.Check.PathRewrite, pub)
	inv := &fakeInvoker{} // empty RawOutput
	r, err := New(zerolog.Nop(), cfg, inv, WithReporter(rep))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pub.count() != 0 {
		t.Errorf("publisher called %d times for output-less checks, want 0", pub.count())
	}
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *countingPublisher) Publish(context.Context, string, string, []toolchain.Finding) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return nil
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func TestRunner_OutcomeCarriesFeatureKeyAndTarget(t *testing.T) {
	inv := &fakeInvoker{}
	r := newTestRunner(t, inv)

	_, outcomes, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byID := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.ConfigID] = o
	}

	o, ok := byID["esp32/wifi/uart"]
	if !ok {
		t.Fatal("esp32/wifi/uart missing from outcomes")
	}
	if o.FeatureKey != "esp32,wifi,uart,sensor-stub,fusion-stub" {
		t.Errorf("feature key = %q", o.FeatureKey)
	}
	if o.Target != "xtensa-esp32-none-elf" || o.Toolchain != "esp" || o.MCU != "esp32" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestNew_RejectsBrokenConfig(t *testing.T) {
	cfg := firmwareConfig()
	cfg.Exclude = append(cfg.Exclude, config.ExcludeConfig{
		AxisA: "mcu", ValueA: "esp32", AxisB: "mcu", ValueB: "esp32",
	})
	_, err := New(zerolog.Nop(), cfg, &fakeInvoker{})
	if err == nil {
		t.Fatal("expected error for reflexive exclusion")
	}
	if !IsConfigError(err) {
		t.Errorf("error = %v, want config class", err)
	}
}

func TestNew_RejectsNilInvoker(t *testing.T) {
	if _, err := New(zerolog.Nop(), firmwareConfig(), nil); !IsConfigError(err) {
		t.Errorf("error = %v, want config class", err)
	}
}
