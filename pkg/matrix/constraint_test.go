package matrix

import (
	"errors"
	"testing"
)

func cfg(selections ...Selection) Configuration {
	return Configuration{Selections: selections}
}

func TestConstraints_AddExclusion(t *testing.T) {
	c := NewConstraints()
	if err := c.AddExclusion("mcu", "esp32", "log", "rtt"); err != nil {
		t.Fatalf("AddExclusion() failed: %v", err)
	}

	// Symmetric lookup in both orders.
	if !c.Excludes("mcu", "esp32", "log", "rtt") {
		t.Error("forward lookup failed")
	}
	if !c.Excludes("log", "rtt", "mcu", "esp32") {
		t.Error("reverse lookup failed")
	}
	if c.Excludes("mcu", "esp32c3", "log", "rtt") {
		t.Error("unrelated pair reported as excluded")
	}

	// Duplicates collapse into one rule.
	if err := c.AddExclusion("log", "rtt", "mcu", "esp32"); err != nil {
		t.Fatalf("re-adding mirrored rule failed: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after duplicate add", c.Len())
	}
}

func TestConstraints_Irreflexive(t *testing.T) {
	c := NewConstraints()
	err := c.AddExclusion("mcu", "esp32", "mcu", "esp32")
	if !errors.Is(err, ErrReflexiveExclusion) {
		t.Fatalf("expected ErrReflexiveExclusion, got %v", err)
	}
}

func TestConstraints_IsValid(t *testing.T) {
	c := NewConstraints()
	mustExclude := func(aa, va, ab, vb string) {
		t.Helper()
		if err := c.AddExclusion(aa, va, ab, vb); err != nil {
			t.Fatal(err)
		}
	}
	mustExclude("mcu", "esp32", "log", "usb-serial")
	mustExclude("mcu", "nrf52840", "net", "wifi")

	tests := []struct {
		name  string
		cfg   Configuration
		valid bool
	}{
		{
			name: "no rule matched",
			cfg: cfg(Selection{"mcu", "esp32c3"}, Selection{"net", "wifi"},
				Selection{"log", "uart"}),
			valid: true,
		},
		{
			name: "one rule matched",
			cfg: cfg(Selection{"mcu", "esp32"}, Selection{"net", "stubbed"},
				Selection{"log", "usb-serial"}),
			valid: false,
		},
		{
			name: "rule matched regardless of selection order",
			cfg: cfg(Selection{"log", "usb-serial"}, Selection{"net", "stubbed"},
				Selection{"mcu", "esp32"}),
			valid: false,
		},
		{
			name: "half a rule present is fine",
			cfg: cfg(Selection{"mcu", "esp32"}, Selection{"net", "wifi"},
				Selection{"log", "uart"}),
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsValid(tt.cfg); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
