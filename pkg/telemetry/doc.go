// Package telemetry provides structured logging, metrics, tracing and
// event publishing for fwmatrix.
//
// Logging wraps zerolog; each subsystem takes a component child logger.
// Metrics are Prometheus collectors on a private registry, exposed over
// an optional HTTP endpoint. Tracing uses OpenTelemetry with OTLP or
// stdout exporters. Events are an in-process pub/sub stream of run and
// check lifecycle notifications consumed by the watch command and the
// execution reporter.
//
// The Telemetry struct bundles all four and travels through
// context.Context so deeply nested code can instrument itself without
// plumbing four constructor arguments.
package telemetry
