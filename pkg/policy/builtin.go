package policy

import (
	"time"
)

// GetBuiltinPolicies returns the policies shipped with the engine.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		radioCapabilityPolicy(),
	}
}

// radioCapabilityPolicy denies network backends a chip family cannot
// drive. It duplicates what a correct exclusion table already says, so a
// specification that forgot the nRF/WiFi rules still never schedules an
// uncompilable configuration.
func radioCapabilityPolicy() Policy {
	return Policy{
		Name:        "radio-capability",
		Description: "Denies network backends the selected chip family has no radio for",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"hardware", "radio"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		builtin:     true,
		Rego: `package fwmatrix.policies.radio

import rego.v1

# nRF52 families carry a BLE-only radio driven by the SoftDevice; the
# plain wifi and ble backends both assume an ESP-style radio stack.
nrf_families := {"nrf52840", "nrf52832"}

deny contains violation if {
	nrf_families[input.config.selections.mcu]
	input.config.selections.net == "wifi"
	violation := {
		"message": sprintf("%s has no WiFi radio", [input.config.selections.mcu]),
		"severity": "error",
	}
}

deny contains violation if {
	nrf_families[input.config.selections.mcu]
	input.config.selections.net == "ble"
	violation := {
		"message": sprintf("%s BLE requires the SoftDevice backend", [input.config.selections.mcu]),
		"severity": "error",
	}
}
`,
	}
}
