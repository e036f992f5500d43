// Package stores provides the in-memory record store for phone verification
// sessions.
//
// # Design
//
// Each session lives in its own entry guarded by a mutex, so read-modify-write
// cycles on one token (attempt counting, resend, expiry) are serialized while
// distinct tokens proceed in parallel. A secondary phone index enforces the
// single-pending-session-per-number rule at insert time. Deletion is
// idempotent: the expiry timer, the sweep and explicit cancellation may race
// to remove the same token.
//
// # Architecture boundaries
//
// This package owns verification state and its concurrency control. It does
// NOT generate codes, talk to delivery gateways, or make verification
// decisions; those belong to the engine, which expresses every state change
// as a Mutation.
//
// # What this package must NOT do
//
//   - Import goVerify or any sibling internal package.
//   - Store or expose plaintext verification codes.
//   - Block while holding the store-wide lock.
package stores
