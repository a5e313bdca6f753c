package matrix

import (
	"reflect"
	"testing"
)

// firmwareMatrix builds the registry and constraints for the real firmware
// matrix: 4 MCU families x 3 network backends x 3 logging sinks with the
// seven hardware exclusions, which must resolve to exactly 17 builds.
func firmwareMatrix(t *testing.T) (*Registry, *Constraints) {
	t.Helper()

	r := NewRegistry()
	for _, axis := range []struct {
		name    string
		members []string
	}{
		{"mcu", []string{"esp32c3", "esp32", "nrf52840", "nrf52832"}},
		{"net", []string{"stubbed", "wifi", "ble"}},
		{"log", []string{"rtt", "usb-serial", "uart"}},
	} {
		if err := r.RegisterAxis(axis.name, axis.members); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.RegisterDerived("mcu", "target", map[string]string{
		"esp32c3":  "riscv32imc-unknown-none-elf",
		"esp32":    "xtensa-esp32-none-elf",
		"nrf52840": "thumbv7em-none-eabihf",
		"nrf52832": "thumbv7em-none-eabihf",
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDerived("mcu", "toolchain", map[string]string{
		"esp32c3":  "esp",
		"esp32":    "esp",
		"nrf52840": "stable",
		"nrf52832": "stable",
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDerived("mcu", "boot", map[string]string{
		"nrf52840": "boot-s140",
		"nrf52832": "boot-s132",
	}); err != nil {
		t.Fatal(err)
	}

	c := NewConstraints()
	for _, rule := range [][4]string{
		{"mcu", "esp32", "log", "usb-serial"},
		{"mcu", "esp32", "log", "rtt"},
		{"mcu", "nrf52832", "log", "usb-serial"},
		{"mcu", "nrf52840", "net", "wifi"},
		{"mcu", "nrf52832", "net", "wifi"},
		{"mcu", "nrf52840", "net", "ble"},
		{"mcu", "nrf52832", "net", "ble"},
	} {
		if err := c.AddExclusion(rule[0], rule[1], rule[2], rule[3]); err != nil {
			t.Fatal(err)
		}
	}

	return r, c
}

func TestResolve_FirmwareMatrixCount(t *testing.T) {
	r, c := firmwareMatrix(t)

	got := ResolveAll(r, c)
	if len(got) != 17 {
		t.Fatalf("resolved %d configurations, want 17", len(got))
	}

	// Per-family contributions: esp32c3 9, esp32 3, nrf52840 3, nrf52832 2.
	perMCU := make(map[string]int)
	for _, cfg := range got {
		mcu, _ := cfg.Value("mcu")
		perMCU[mcu]++
	}
	want := map[string]int{"esp32c3": 9, "esp32": 3, "nrf52840": 3, "nrf52832": 2}
	if !reflect.DeepEqual(perMCU, want) {
		t.Fatalf("per-MCU counts = %v, want %v", perMCU, want)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r, c := firmwareMatrix(t)

	first := ResolveAll(r, c)
	second := ResolveAll(r, c)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two resolutions of the same matrix differ")
	}

	// MCU is the outermost loop: the first nine entries are all esp32c3.
	for i := 0; i < 9; i++ {
		if mcu, _ := first[i].Value("mcu"); mcu != "esp32c3" {
			t.Fatalf("configuration %d has mcu %q, want esp32c3 first", i, mcu)
		}
	}
}

func TestResolve_AllSurvivorsValid(t *testing.T) {
	r, c := firmwareMatrix(t)

	for cfg := range Resolve(r, c) {
		if !c.IsValid(cfg) {
			t.Fatalf("resolver yielded invalid configuration %s", cfg.ID())
		}
	}
}

func TestResolve_NoDoubleRemoval(t *testing.T) {
	// A candidate matching two rules must be removed once, not twice:
	// total = raw product minus distinct matching candidates.
	r := NewRegistry()
	if err := r.RegisterAxis("a", []string{"a1", "a2"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterAxis("b", []string{"b1", "b2"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterAxis("c", []string{"c1", "c2"}); err != nil {
		t.Fatal(err)
	}

	c := NewConstraints()
	// (a1,b1) and (a1,c1) both match the candidate {a1,b1,c1}.
	if err := c.AddExclusion("a", "a1", "b", "b1"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddExclusion("a", "a1", "c", "c1"); err != nil {
		t.Fatal(err)
	}

	// Raw product 8; candidates matching at least one rule:
	// {a1,b1,c1} {a1,b1,c2} {a1,b2,c1} = 3 distinct. Expect 5 survivors.
	if got := len(ResolveAll(r, c)); got != 5 {
		t.Fatalf("resolved %d configurations, want 5", got)
	}
}

func TestResolve_DerivedAttached(t *testing.T) {
	r, c := firmwareMatrix(t)

	for cfg := range Resolve(r, c) {
		mcu, _ := cfg.Value("mcu")

		if _, ok := cfg.DerivedValue("target"); !ok {
			t.Fatalf("%s: missing target triple", cfg.ID())
		}
		if _, ok := cfg.DerivedValue("toolchain"); !ok {
			t.Fatalf("%s: missing toolchain variant", cfg.ID())
		}

		_, hasBoot := cfg.DerivedValue("boot")
		wantBoot := mcu == "nrf52840" || mcu == "nrf52832"
		if hasBoot != wantBoot {
			t.Fatalf("%s: boot variant present=%v, want %v", cfg.ID(), hasBoot, wantBoot)
		}
	}
}

func TestResolve_FilterSeesDerived(t *testing.T) {
	r, c := firmwareMatrix(t)

	// A filter keyed on a derived attribute must see it attached; only
	// the nRF families carry the "stable" toolchain variant (5 builds).
	stableOnly := func(cfg Configuration) bool {
		tc, ok := cfg.DerivedValue("toolchain")
		return ok && tc == "stable"
	}

	got := ResolveAll(r, c, stableOnly)
	if len(got) != 5 {
		t.Fatalf("derived-keyed filter yielded %d configurations, want 5", len(got))
	}
	for _, cfg := range got {
		if mcu, _ := cfg.Value("mcu"); mcu != "nrf52840" && mcu != "nrf52832" {
			t.Fatalf("derived-keyed filter kept %s", cfg.ID())
		}
	}
}

func TestResolve_FilterApplied(t *testing.T) {
	r, c := firmwareMatrix(t)

	onlyNRF := func(cfg Configuration) bool {
		mcu, _ := cfg.Value("mcu")
		return mcu == "nrf52840" || mcu == "nrf52832"
	}

	got := ResolveAll(r, c, onlyNRF)
	if len(got) != 5 {
		t.Fatalf("filtered resolution yielded %d configurations, want 5", len(got))
	}
}

func TestResolve_Restartable(t *testing.T) {
	r, c := firmwareMatrix(t)
	seq := Resolve(r, c)

	// Consume partially, then restart from the top.
	var firstOfFirstPass Configuration
	for cfg := range seq {
		firstOfFirstPass = cfg
		break
	}
	var firstOfSecondPass Configuration
	for cfg := range seq {
		firstOfSecondPass = cfg
		break
	}
	if !reflect.DeepEqual(firstOfFirstPass, firstOfSecondPass) {
		t.Fatal("sequence is not restartable")
	}
}
