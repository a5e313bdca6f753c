package matrix

// FeatureBuilder converts resolved configurations into the flat feature-flag
// list passed to the compiler. Token order is fixed: the selected value of
// each axis in the builder's axis order, then the bootloader variant when
// the configuration carries one, then the fixed baseline stubs for the
// subsystems this pipeline never exercises (sensor and fusion stubs).
//
// Build is pure: the same configuration always yields a token-identical
// FeatureSet, which is what makes the key usable for caching and for
// attributing per-configuration reports.
type FeatureBuilder struct {
	axisOrder   []string
	bootDerived string
	baseline    []string
}

// NewFeatureBuilder creates a builder emitting axis values in the given
// order, appending the named derived attribute (typically "boot") when
// present, and terminating every set with the baseline features.
func NewFeatureBuilder(axisOrder []string, bootDerived string, baseline []string) *FeatureBuilder {
	return &FeatureBuilder{
		axisOrder:   append([]string(nil), axisOrder...),
		bootDerived: bootDerived,
		baseline:    append([]string(nil), baseline...),
	}
}

// Build flattens the configuration into its feature set.
func (b *FeatureBuilder) Build(cfg Configuration) FeatureSet {
	tokens := make([]string, 0, len(b.axisOrder)+1+len(b.baseline))
	for _, axis := range b.axisOrder {
		if v, ok := cfg.Value(axis); ok {
			tokens = append(tokens, v)
		}
	}
	if b.bootDerived != "" {
		if v, ok := cfg.DerivedValue(b.bootDerived); ok {
			tokens = append(tokens, v)
		}
	}
	tokens = append(tokens, b.baseline...)
	return FeatureSet{Tokens: tokens}
}

// Baseline returns the fixed trailing features of every built set.
func (b *FeatureBuilder) Baseline() []string {
	return append([]string(nil), b.baseline...)
}
