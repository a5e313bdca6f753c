package matrix

import "fmt"

// Registry declares the selectable axes of the build matrix and the derived
// attributes of their members. It is populated once during initialization
// and read-only afterwards, so concurrent readers need no synchronization.
type Registry struct {
	axes  []Axis
	index map[string]int

	// derived: axis -> attribute name -> member -> value.
	derived map[string]map[string]map[string]string
}

// NewRegistry creates an empty axis registry.
func NewRegistry() *Registry {
	return &Registry{
		index:   make(map[string]int),
		derived: make(map[string]map[string]map[string]string),
	}
}

// RegisterAxis declares a primary axis with its ordered member set.
// Registering the same axis name twice fails with ErrDuplicateAxis;
// duplicate members fail with ErrDuplicateMember.
func (r *Registry) RegisterAxis(name string, members []string) error {
	if name == "" {
		return fmt.Errorf("%w: empty axis name", ErrUnknownAxis)
	}
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAxis, name)
	}
	if len(members) == 0 {
		return fmt.Errorf("axis %s has no members", name)
	}

	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == "" {
			return fmt.Errorf("axis %s has an empty member", name)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: %s on axis %s", ErrDuplicateMember, m, name)
		}
		seen[m] = struct{}{}
	}

	r.index[name] = len(r.axes)
	r.axes = append(r.axes, Axis{Name: name, Members: append([]string(nil), members...)})
	return nil
}

// RegisterDerived declares a derived attribute for an axis: a mapping from
// axis members to dependent values (e.g. MCU family to target triple). The
// mapping may be partial; members without an entry simply do not define the
// attribute. Referencing an unregistered axis fails with ErrUnknownAxis;
// mapping a value that is not a member fails with ErrUnknownMember.
func (r *Registry) RegisterDerived(axis, name string, mapping map[string]string) error {
	idx, ok := r.index[axis]
	if !ok {
		return fmt.Errorf("%w: %s (derived attribute %s)", ErrUnknownAxis, axis, name)
	}
	if name == "" {
		return fmt.Errorf("derived attribute on axis %s has no name", axis)
	}

	members := make(map[string]struct{}, len(r.axes[idx].Members))
	for _, m := range r.axes[idx].Members {
		members[m] = struct{}{}
	}
	for member := range mapping {
		if _, ok := members[member]; !ok {
			return fmt.Errorf("%w: %s on axis %s (derived attribute %s)",
				ErrUnknownMember, member, axis, name)
		}
	}

	byName := r.derived[axis]
	if byName == nil {
		byName = make(map[string]map[string]string)
		r.derived[axis] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("derived attribute %s already registered on axis %s", name, axis)
	}

	copied := make(map[string]string, len(mapping))
	for k, v := range mapping {
		copied[k] = v
	}
	byName[name] = copied
	return nil
}

// Axes returns the registered axes in declaration order.
func (r *Registry) Axes() []Axis {
	out := make([]Axis, len(r.axes))
	copy(out, r.axes)
	return out
}

// MembersOf returns the member set of an axis, in declaration order.
func (r *Registry) MembersOf(axis string) ([]string, error) {
	idx, ok := r.index[axis]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, axis)
	}
	return append([]string(nil), r.axes[idx].Members...), nil
}

// HasMember reports whether value is a registered member of axis.
func (r *Registry) HasMember(axis, value string) bool {
	idx, ok := r.index[axis]
	if !ok {
		return false
	}
	for _, m := range r.axes[idx].Members {
		if m == value {
			return true
		}
	}
	return false
}

// DerivedValue returns the named derived attribute for an axis member.
// A missing entry is not an error: not every member defines every
// attribute (only bootloader-capable MCUs carry a boot variant).
func (r *Registry) DerivedValue(axis, member, name string) (string, bool) {
	byName, ok := r.derived[axis]
	if !ok {
		return "", false
	}
	mapping, ok := byName[name]
	if !ok {
		return "", false
	}
	v, ok := mapping[member]
	return v, ok
}

// derivedFor collects every derived attribute defined for the given member
// of the given axis.
func (r *Registry) derivedFor(axis, member string) map[string]string {
	byName, ok := r.derived[axis]
	if !ok {
		return nil
	}
	var out map[string]string
	for name, mapping := range byName {
		if v, ok := mapping[member]; ok {
			if out == nil {
				out = make(map[string]string)
			}
			out[name] = v
		}
	}
	return out
}
