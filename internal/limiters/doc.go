// Package limiters provides the phone verification rate limiter built on
// the internal/rate fixed-window counter.
//
// # Keys
//
//   - pvi:<phone>  initiate per destination number
//   - pvip:<ip>    initiate per client IP
//   - pvr:<token>  resend per session
//
// The limiter is nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goVerify or any sibling internal package except internal/rate.
//   - Decide consequences; the engine maps limiter errors to caller errors.
package limiters
