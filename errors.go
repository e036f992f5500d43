package goVerify

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrInvalidPhoneNumber reports a destination that is not in +<digits> international form.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	// ErrInvalidMethod reports an unsupported delivery method.
	ErrInvalidMethod = errors.New("unsupported delivery method")
	// ErrSessionNotFound reports an unknown, removed or no longer pending session token.
	ErrSessionNotFound = errors.New("verification session not found")
	// ErrAlreadyVerified is returned while a verified session lingers in its grace
	// window. It matches ErrSessionNotFound under errors.Is.
	ErrAlreadyVerified = fmt.Errorf("%w: already verified", ErrSessionNotFound)
	// ErrSessionExpired reports a session past its deadline. The session is removed.
	ErrSessionExpired = errors.New("verification session expired")
	// ErrAttemptsExhausted reports that the last allowed attempt was used. The session is removed.
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrDeliveryFailed reports that every delivery attempt failed.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrRateLimited reports an exhausted initiate or resend budget.
	ErrRateLimited = errors.New("verification rate limited")
	// ErrRateLimiterUnavailable reports a rate limiter backend failure.
	ErrRateLimiterUnavailable = errors.New("verification rate limiter unavailable")
	// ErrEngineNotReady reports a nil or closed engine.
	ErrEngineNotReady = errors.New("verification engine not ready")
	// ErrReceiptsDisabled reports a receipt operation while receipts are off.
	ErrReceiptsDisabled = errors.New("verification receipts disabled")
	// ErrReceiptInvalid reports a receipt that fails signature or claim checks.
	ErrReceiptInvalid = errors.New("verification receipt invalid")
	// ErrGatewayRequired reports a Build without a delivery gateway.
	ErrGatewayRequired = errors.New("delivery gateway required")
	// ErrBuilderUsed reports a second Build on the same builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// VerificationError carries the session state a client needs to decide
// whether to retry, resend or restart. It wraps one of the sentinel errors.
type VerificationError struct {
	Err               error
	Token             string
	AttemptsRemaining int
	ExpiresAt         time.Time
}

// Error returns the wrapped sentinel message followed by the attempts
// remaining and expiry when a session is attached.
func (e *VerificationError) Error() string {
	if e == nil || e.Err == nil {
		return "verification error"
	}
	msg := e.Err.Error()
	if e.Token != "" {
		msg += " (attempts remaining: " + strconv.Itoa(e.AttemptsRemaining)
		if !e.ExpiresAt.IsZero() {
			msg += ", expires at: " + e.ExpiresAt.UTC().Format(time.RFC3339)
		}
		msg += ")"
	}
	return msg
}

// Unwrap returns the sentinel so errors.Is matches it.
func (e *VerificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func sessionError(err error, token string, attemptsRemaining int, expiresAt time.Time) error {
	return &VerificationError{
		Err:               err,
		Token:             token,
		AttemptsRemaining: attemptsRemaining,
		ExpiresAt:         expiresAt,
	}
}
