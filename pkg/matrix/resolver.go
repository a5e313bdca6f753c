package matrix

import "iter"

// Filter is an additional predicate applied to candidates that survive the
// exclusion rules. Candidates reach filters with their derived attributes
// already attached, so a filter may key on them. Policy-driven constraints
// plug in here; a filter must be pure so that resolution stays deterministic
// and restartable.
type Filter func(Configuration) bool

// Resolve enumerates the valid configurations of the matrix as a lazy,
// restartable sequence. Candidates are generated as the cartesian product
// of the registered axes in declaration order (first axis outermost), so
// two resolutions over the same registry and constraints always yield the
// same configurations in the same order. Survivors are annotated with every
// derived attribute available for their selected members.
func Resolve(reg *Registry, cons *Constraints, filters ...Filter) iter.Seq[Configuration] {
	axes := reg.Axes()
	return func(yield func(Configuration) bool) {
		if len(axes) == 0 {
			return
		}
		selections := make([]Selection, len(axes))
		enumerate(reg, cons, axes, selections, 0, filters, yield)
	}
}

// enumerate walks one axis of the product, recursing into the next. It
// returns false once the consumer stops the iteration.
func enumerate(
	reg *Registry,
	cons *Constraints,
	axes []Axis,
	selections []Selection,
	depth int,
	filters []Filter,
	yield func(Configuration) bool,
) bool {
	if depth == len(axes) {
		cfg := Configuration{Selections: append([]Selection(nil), selections...)}
		if !cons.IsValid(cfg) {
			return true
		}
		// Derived attributes are attached before the filters run so a
		// filter can key on target, toolchain or boot variant. Derivation
		// is pure, so the sequence stays deterministic.
		cfg.Derived = collectDerived(reg, cfg.Selections)
		for _, f := range filters {
			if !f(cfg) {
				return true
			}
		}
		return yield(cfg)
	}

	for _, member := range axes[depth].Members {
		selections[depth] = Selection{Axis: axes[depth].Name, Value: member}
		if !enumerate(reg, cons, axes, selections, depth+1, filters, yield) {
			return false
		}
	}
	return true
}

// collectDerived gathers the derived attributes of every selected member.
func collectDerived(reg *Registry, selections []Selection) map[string]string {
	var out map[string]string
	for _, s := range selections {
		for name, value := range reg.derivedFor(s.Axis, s.Value) {
			if out == nil {
				out = make(map[string]string)
			}
			out[name] = value
		}
	}
	return out
}

// ResolveAll collects the full resolution into a slice, preserving order.
func ResolveAll(reg *Registry, cons *Constraints, filters ...Filter) []Configuration {
	var out []Configuration
	for cfg := range Resolve(reg, cons, filters...) {
		out = append(out, cfg)
	}
	return out
}
