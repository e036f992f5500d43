// Package internal contains helper utilities that are intentionally private to goVerify,
// including secure code and session token generation.
//
// # Sub-packages
//
//   - audit - async event dispatch (Dispatcher + Sink implementations)
//   - delivery - gateway dispatch with scheduled retries and backoff
//   - expiry - per-session expiry timers and the periodic sweep job
//   - limiters - phone verification rate limiter
//   - rate - core Redis-backed fixed-window primitive
//   - stores - in-memory verification session store
//
// # What this package must NOT do
//
//   - Export types that appear in the public goVerify API.
//   - Be imported by any package outside the goVerify module.
package internal
