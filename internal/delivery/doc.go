// Package delivery sends verification codes through a gateway with bounded,
// clock-scheduled retries.
//
// # Flow
//
//  1. Send registers a job for the session token and starts the first
//     attempt on its own goroutine.
//  2. A failed attempt schedules the next one with AfterFunc using the
//     configured backoff; nothing sleeps and no lock is held across the
//     gateway call.
//  3. Before each retry the Live hook is consulted with the session token
//     and generation. A stale generation resolves the job as Superseded.
//
// # What this package must NOT do
//
//   - Read or mutate verification sessions directly.
//   - Render message text; callers pass the finished body.
package delivery
