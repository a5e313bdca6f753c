// Package runner drives a full matrix run: it resolves the valid
// configurations, fans them out over a worker pool, invokes the
// toolchain per configuration, classifies each outcome against the
// tolerance list and publishes rewritten findings keyed by feature set.
//
// Configurations are embarrassingly parallel; the registry, constraints
// and feature builder are read-only once the run starts. Checks are
// never retried. An infrastructure failure (spawn, transport, timeout)
// cancels the whole run; a failing check is an outcome, not an error.
package runner
