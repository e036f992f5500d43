// Package goVerify issues, delivers and validates one-time codes that prove
// control of a phone number, for add-phone and change-phone flows.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Session lifecycle
//
// [Engine.Initiate] creates a pending session, delivers the code through the
// configured [DeliveryGateway] with bounded, clock-scheduled retries and
// returns an opaque token. [Engine.Verify] consumes attempts, [Engine.Resend]
// replaces the code and extends the deadline, [Engine.Cancel] drops the
// session. Per-session timers and a periodic sweep evict sessions that are
// past their deadline or already terminal.
//
// # Architecture boundaries
//
// goVerify is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (InitiateResult, SessionInfo, MetricsSnapshot, ...). Session
// storage, delivery retries, expiry scheduling, rate limiting and audit
// dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Return or log plaintext verification codes outside the gateway message.
//   - Persist sessions; state is process-local and lost on restart.
//   - Hold a lock while a gateway call or a caller wait is in progress.
package goVerify
