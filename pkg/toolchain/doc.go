// Package toolchain invokes the external firmware build/lint command for
// one resolved configuration and parses its JSON diagnostics.
//
// Two invokers exist: LocalInvoker runs the command as a subprocess,
// RemoteInvoker runs it on a build host over SSH and fetches the
// diagnostics file back over SFTP. Both honor a per-invocation context
// deadline and never interpret a non-zero exit as an infrastructure
// error; a failed check is a domain outcome, not an invoker failure.
//
// Concurrent invocations that would share an on-disk artifact cache
// (same feature key and target triple) are serialized by CacheGuard.
package toolchain
