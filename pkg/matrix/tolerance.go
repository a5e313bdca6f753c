package matrix

import "sort"

// Tolerance is the soft-fail allowlist: configurations whose selected value
// on one axis (in practice the MCU family) belongs to the allowlist are
// attempted and reported, but their failures do not gate the overall run.
// Tolerance is a policy decision independent of validity, kept as its own
// inspectable predicate rather than folded into the check invocation.
type Tolerance struct {
	axis  string
	allow map[string]struct{}
}

// NewTolerance creates a classifier tolerating failures of configurations
// whose value on the given axis is in members.
func NewTolerance(axis string, members []string) *Tolerance {
	allow := make(map[string]struct{}, len(members))
	for _, m := range members {
		allow[m] = struct{}{}
	}
	return &Tolerance{axis: axis, allow: allow}
}

// IsTolerated reports whether a failure of this configuration is recorded
// without failing the run.
func (t *Tolerance) IsTolerated(cfg Configuration) bool {
	if t == nil || len(t.allow) == 0 {
		return false
	}
	v, ok := cfg.Value(t.axis)
	if !ok {
		return false
	}
	_, tolerated := t.allow[v]
	return tolerated
}

// Members returns the tolerated member set, for reporting.
func (t *Tolerance) Members() []string {
	out := make([]string, 0, len(t.allow))
	for m := range t.allow {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
