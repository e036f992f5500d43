package goVerify

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goVerify/internal"
	"github.com/MrEthical07/goVerify/internal/delivery"
	"github.com/MrEthical07/goVerify/internal/stores"
)

// Resend replaces the session's code with a fresh one, resets its attempts
// and deadline, and delivers it, blocking like Initiate. The previous code
// stops verifying immediately.
//
// When delivery fails the session stays pending with the new code unless
// Delivery.DiscardOnResendFailure is set, in which case it is removed. In
// both cases the error wraps ErrDeliveryFailed.
func (e *Engine) Resend(ctx context.Context, token string) (ResendResult, error) {
	if err := e.ready(); err != nil {
		return ResendResult{}, err
	}

	current, err := e.pendingResult(token)
	if err != nil {
		return ResendResult{}, e.resendFailed(ctx, stores.Session{Token: token}, err)
	}

	if e.limiter != nil {
		if err := mapRateError(e.limiter.CheckResend(ctx, token)); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "resend", current)
			}
			return ResendResult{}, e.resendFailed(ctx, current, err)
		}
	}

	code, err := internal.NewOTPFrom(e.random, e.config.Session.CodeDigits)
	if err != nil {
		return ResendResult{}, e.resendFailed(ctx, current, fmt.Errorf("generate code: %w", err))
	}
	body, err := e.renderMessage(code, Method(current.Method))
	if err != nil {
		return ResendResult{}, e.resendFailed(ctx, current, fmt.Errorf("render message: %w", err))
	}

	now := e.clock.Now()
	expired := false
	rec, _, err := e.store.Update(token, func(s *stores.Session) stores.Action {
		if s.Status != stores.StatusPending {
			return stores.Keep
		}
		if s.Expired(now) {
			expired = true
			s.Status = stores.StatusExpired
			return stores.Remove
		}
		s.CodeHash = internal.HashCode(code)
		s.AttemptsUsed = 0
		s.DeliveryRetryCount = 0
		s.ExpiresAt = now.Add(e.config.Session.TTL)
		s.Generation++
		return stores.Save
	})
	switch {
	case err != nil:
		return ResendResult{}, e.resendFailed(ctx, stores.Session{Token: token}, ErrSessionNotFound)
	case expired:
		e.timers.Disarm(token)
		e.dispatch.Cancel(token)
		e.metricInc(MetricSessionExpired)
		return ResendResult{}, e.resendFailed(ctx, rec, sessionError(ErrSessionExpired, token, rec.AttemptsRemaining(), rec.ExpiresAt))
	case rec.Status != stores.StatusPending:
		return ResendResult{}, e.resendFailed(ctx, rec, ErrSessionNotFound)
	}

	// a concurrent Resend may already have saved a newer generation; the
	// timer and dispatcher keep the newest one and report this one superseded
	e.timers.Arm(token, rec.Generation, rec.ExpiresAt, e.onExpiry)

	outcome, err := e.awaitDelivery(ctx, delivery.Request{
		Token:       token,
		Generation:  rec.Generation,
		Destination: rec.PhoneNumber,
		Method:      rec.Method,
		Body:        body,
	})
	if err != nil {
		return ResendResult{}, e.resendUndelivered(ctx, rec, err)
	}

	switch outcome.Result {
	case delivery.Delivered:
	case delivery.Superseded:
		latest, err := e.pendingResult(token)
		if err != nil {
			return ResendResult{}, e.resendFailed(ctx, rec, err)
		}
		rec = latest
	default:
		e.metricInc(MetricDeliveryFailure)
		return ResendResult{}, e.resendUndelivered(ctx, rec, deliveryError(outcome))
	}

	e.metricInc(MetricResendSuccess)
	e.emitAudit(ctx, auditEventResend, true, rec, nil, func() map[string]string {
		return map[string]string{
			"attempts":   fmt.Sprint(outcome.Attempts),
			"generation": fmt.Sprint(rec.Generation),
		}
	})

	return ResendResult{
		ExpiresAt:         rec.ExpiresAt,
		AttemptsRemaining: rec.AttemptsRemaining(),
	}, nil
}

// resendUndelivered applies the resend failure policy.
func (e *Engine) resendUndelivered(ctx context.Context, rec stores.Session, cause error) error {
	if e.config.Delivery.DiscardOnResendFailure {
		if removed, ok := e.discard(rec.Token, rec.Generation, stores.StatusFailed); ok {
			rec = removed
		}
		return e.resendFailed(ctx, rec, cause)
	}

	// the session stays pending with the new code; the caller may resend again
	if isContextErr(cause) {
		return e.resendFailed(ctx, rec, cause)
	}
	return e.resendFailed(ctx, rec, sessionError(cause, rec.Token, rec.AttemptsRemaining(), rec.ExpiresAt))
}

func (e *Engine) resendFailed(ctx context.Context, rec stores.Session, err error) error {
	e.metricInc(MetricResendFailure)
	e.emitAudit(ctx, auditEventResend, false, rec, err, nil)
	return err
}
