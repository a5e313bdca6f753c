package matrix

import "strings"

// Axis is a named build dimension with an ordered set of distinct,
// mutually exclusive members.
type Axis struct {
	// Name is the axis name (e.g. "mcu", "net", "log").
	Name string `json:"name"`

	// Members are the selectable values, in declaration order.
	Members []string `json:"members"`
}

// Selection is one (axis, value) assignment inside a configuration.
type Selection struct {
	// Axis is the axis name.
	Axis string `json:"axis"`

	// Value is the selected member.
	Value string `json:"value"`
}

// Configuration is one complete assignment of exactly one member per
// registered axis, plus the derived attributes of the selected members.
// Configurations are created transiently by the resolver and discarded
// once their check outcome has been recorded.
type Configuration struct {
	// Selections holds one entry per axis, in axis declaration order.
	Selections []Selection `json:"selections"`

	// Derived maps derived-attribute names to their values for the
	// selected members. Members without a given attribute contribute
	// no entry; absence is not an error.
	Derived map[string]string `json:"derived,omitempty"`
}

// Value returns the selected member for the given axis.
func (c Configuration) Value(axis string) (string, bool) {
	for _, s := range c.Selections {
		if s.Axis == axis {
			return s.Value, true
		}
	}
	return "", false
}

// DerivedValue returns the named derived attribute, if the configuration
// carries one.
func (c Configuration) DerivedValue(name string) (string, bool) {
	v, ok := c.Derived[name]
	return v, ok
}

// ID returns a short human-readable identity for logs: the selected
// values joined in axis order.
func (c Configuration) ID() string {
	parts := make([]string, len(c.Selections))
	for i, s := range c.Selections {
		parts[i] = s.Value
	}
	return strings.Join(parts, "/")
}

// ExclusionRule is an unordered pair of (axis, value) selections that may
// never co-occur in a valid configuration.
type ExclusionRule struct {
	// AxisA and ValueA are the first selection of the pair.
	AxisA  string `json:"axis_a"`
	ValueA string `json:"value_a"`

	// AxisB and ValueB are the second selection of the pair.
	AxisB  string `json:"axis_b"`
	ValueB string `json:"value_b"`
}

// FeatureSet is the ordered flattening of a configuration into the string
// tokens passed to the compiler as feature flags. Token order is
// deterministic for a given configuration; the joined form is the stable
// identity used for caching and report publication.
type FeatureSet struct {
	// Tokens are the feature flags in fixed order: primary axis values,
	// then the bootloader variant when present, then the baseline stubs.
	Tokens []string `json:"tokens"`
}

// Key returns the comma-joined token list. Two configurations share a key
// iff they would be compiled with an identical feature surface.
func (fs FeatureSet) Key() string {
	return strings.Join(fs.Tokens, ",")
}

// String implements fmt.Stringer.
func (fs FeatureSet) String() string {
	return fs.Key()
}
