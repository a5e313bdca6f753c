// Package policy evaluates Rego policies against candidate matrix
// configurations.
//
// Policies are a second, externally maintained exclusion layer on top of
// the declarative exclusion table: each policy exports a `deny` set, and
// a candidate configuration denied with error severity is dropped from
// the resolved matrix exactly as if a static exclusion rule had matched
// it. Warning-severity denials are logged and kept.
//
// A built-in radio-capability policy ships with the engine; additional
// .rego files load from the paths named in the specification and can be
// hot-reloaded through the loader's filesystem watcher.
package policy
