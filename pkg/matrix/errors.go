package matrix

import "errors"

// Sentinel errors for registry and constraint misuse. All of these are
// specification errors: they abort initialization before any resolution or
// check is attempted.
var (
	// ErrDuplicateAxis is returned when an axis name is registered twice.
	ErrDuplicateAxis = errors.New("axis already registered")

	// ErrUnknownAxis is returned when a derived mapping or exclusion rule
	// references an axis that was never registered.
	ErrUnknownAxis = errors.New("unknown axis")

	// ErrUnknownMember is returned when a derived mapping or exclusion rule
	// references a value that is not a member of its axis.
	ErrUnknownMember = errors.New("unknown axis member")

	// ErrDuplicateMember is returned when an axis declares the same member
	// twice. Members of one axis must be distinct.
	ErrDuplicateMember = errors.New("duplicate axis member")

	// ErrReflexiveExclusion is returned when an exclusion rule pairs a
	// value with itself. Rules are irreflexive by definition.
	ErrReflexiveExclusion = errors.New("value cannot exclude itself")
)
