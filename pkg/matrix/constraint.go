package matrix

import "fmt"

// pair identifies one (axis, value) selection inside the exclusion index.
type pair struct {
	axis  string
	value string
}

// Constraints holds the pairwise incompatibility rules of the matrix.
// Rules are indexed under both orderings so membership tests are O(1)
// regardless of which side of the pair is asked about. Like the Registry,
// a Constraints value is read-only after initialization.
type Constraints struct {
	index map[pair]map[pair]struct{}
	rules []ExclusionRule
}

// NewConstraints creates an empty constraint set.
func NewConstraints() *Constraints {
	return &Constraints{index: make(map[pair]map[pair]struct{})}
}

// AddExclusion records that (axisA, valueA) and (axisB, valueB) may never
// co-occur. Rules are symmetric, so the pair is indexed in both directions.
// A value cannot exclude itself: a reflexive rule fails with
// ErrReflexiveExclusion. Adding the same rule twice is a no-op.
func (c *Constraints) AddExclusion(axisA, valueA, axisB, valueB string) error {
	if axisA == "" || axisB == "" || valueA == "" || valueB == "" {
		return fmt.Errorf("exclusion rule has an empty axis or value")
	}

	a := pair{axis: axisA, value: valueA}
	b := pair{axis: axisB, value: valueB}
	if a == b {
		return fmt.Errorf("%w: %s=%s", ErrReflexiveExclusion, axisA, valueA)
	}

	if c.excludes(a, b) {
		return nil
	}

	c.link(a, b)
	c.link(b, a)
	c.rules = append(c.rules, ExclusionRule{
		AxisA: axisA, ValueA: valueA,
		AxisB: axisB, ValueB: valueB,
	})
	return nil
}

func (c *Constraints) link(from, to pair) {
	set := c.index[from]
	if set == nil {
		set = make(map[pair]struct{})
		c.index[from] = set
	}
	set[to] = struct{}{}
}

func (c *Constraints) excludes(a, b pair) bool {
	set, ok := c.index[a]
	if !ok {
		return false
	}
	_, forbidden := set[b]
	return forbidden
}

// Excludes reports whether an exclusion rule forbids the two selections
// from co-occurring, in either order.
func (c *Constraints) Excludes(axisA, valueA, axisB, valueB string) bool {
	return c.excludes(pair{axisA, valueA}, pair{axisB, valueB})
}

// IsValid reports whether the configuration violates no exclusion rule:
// it returns false iff some rule's pair is fully contained in the
// configuration's selections. A candidate matching several rules is simply
// invalid; rules are a filter, not a counter.
func (c *Constraints) IsValid(cfg Configuration) bool {
	for i := range cfg.Selections {
		set, ok := c.index[pair{cfg.Selections[i].Axis, cfg.Selections[i].Value}]
		if !ok {
			continue
		}
		for j := i + 1; j < len(cfg.Selections); j++ {
			if _, forbidden := set[pair{cfg.Selections[j].Axis, cfg.Selections[j].Value}]; forbidden {
				return false
			}
		}
	}
	return true
}

// Rules returns the registered exclusion rules in insertion order.
func (c *Constraints) Rules() []ExclusionRule {
	out := make([]ExclusionRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Len returns the number of distinct exclusion rules.
func (c *Constraints) Len() int {
	return len(c.rules)
}
