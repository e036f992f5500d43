// Package middleware exposes net/http adapters around goVerify.Engine.
//
//   - [RequireReceipt] admits requests carrying a valid verification receipt
//     and injects the parsed [goVerify.Receipt] into the request context.
//   - [RequireReceiptFor] additionally binds the receipt to a request subject.
//   - [ClientIP] records the caller address for per-IP initiate limits.
//
// # What this package must NOT do
//
//   - Parse or sign receipts directly (delegates to Engine.ParseReceipt).
//   - Mutate verification sessions.
package middleware
