// Package expiry schedules session deadlines.
//
// Timers holds one clock timer per session token, tagged with the session
// generation it was armed for, so a callback that outlived a resend can be
// recognized as stale by the engine. Sweeper runs the periodic eviction job
// on a gocron scheduler driven by the same clock.
//
// Neither type touches session state; both only invoke callbacks.
package expiry
