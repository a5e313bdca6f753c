// Package config loads and validates the declarative build-matrix
// specification that drives fwmatrix.
//
// The specification is CUE-first: a .cue file (or directory of .cue files)
// declares the axes, their members, the derived attribute maps, the
// exclusion table, the tolerated families, the feature baseline, and the
// check invocation. YAML files with the same shape are accepted for trees
// that do not carry CUE.
//
// Loading is strict. Decoded configuration is validated three ways before
// anything is resolved: CUE schema unification, struct-tag validation via
// go-playground/validator, and cross-reference checks against the axis
// model (an exclusion naming an unknown member is a specification error,
// not a silently dead rule). Any failure aborts initialization; partial
// resolution of a malformed matrix is never meaningful.
//
// Optional Starlark generator scripts may extend the matrix procedurally,
// emitting extra members and exclusion pairs before validation runs.
package config
