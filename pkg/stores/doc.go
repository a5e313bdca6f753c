// Package stores persists matrix runs, per-configuration outcomes and
// their findings in SQLite, with schema migrations embedded in the
// binary. It implements runner.Store and backs the report command.
package stores
