// Package jwt issues and verifies verification receipts: signed, short-lived
// tokens stating that a session proved control of a phone number. Downstream
// services (for example a profile store) accept a number only with a valid
// receipt.
package jwt
