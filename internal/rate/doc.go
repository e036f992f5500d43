// Package rate provides the Redis-backed fixed-window counter used by the
// verification limiters.
//
// # Window semantics
//
// INCR plus PEXPIRE on the first hit, executed as one Lua script so a crash
// between the two commands cannot leave a counter without a TTL. Keys are
// namespaced by the prefix handed to NewWindow.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goVerify module.
package rate
