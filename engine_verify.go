package goVerify

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/internal"
	"github.com/MrEthical07/goVerify/internal/stores"
)

type verifyOutcome uint8

const (
	verifyMismatch verifyOutcome = iota
	verifyMatched
	verifyExpired
	verifyExhausted
	verifyAlreadyVerified
	verifyNotPending
)

// Verify checks code against the session identified by token.
//
// A wrong code with attempts left returns Verified false and a nil error.
// The attempt that uses the last try removes the session and returns an
// error wrapping ErrAttemptsExhausted. A correct code marks the session
// verified; it stays readable through Status for SuccessGrace and is then
// removed. Surrounding whitespace in code is ignored.
func (e *Engine) Verify(ctx context.Context, token, code string) (VerifyResult, error) {
	if err := e.ready(); err != nil {
		return VerifyResult{}, err
	}

	now := e.clock.Now()
	hash := internal.HashCode(strings.TrimSpace(code))

	var outcome verifyOutcome
	rec, _, err := e.store.Update(token, func(s *stores.Session) stores.Action {
		switch {
		case s.Status == stores.StatusVerified:
			outcome = verifyAlreadyVerified
			return stores.Keep
		case s.Status != stores.StatusPending:
			outcome = verifyNotPending
			return stores.Keep
		case s.Expired(now):
			outcome = verifyExpired
			s.Status = stores.StatusExpired
			return stores.Remove
		case s.AttemptsUsed >= s.AttemptsMax:
			outcome = verifyExhausted
			s.Status = stores.StatusFailed
			return stores.Remove
		}

		s.AttemptsUsed++
		if subtle.ConstantTimeCompare(hash[:], s.CodeHash[:]) == 1 {
			outcome = verifyMatched
			s.Status = stores.StatusVerified
			s.VerifiedAt = now
			return stores.Save
		}
		if s.AttemptsUsed >= s.AttemptsMax {
			outcome = verifyExhausted
			s.Status = stores.StatusFailed
			return stores.Remove
		}
		outcome = verifyMismatch
		return stores.Save
	})
	if err != nil {
		e.metricInc(MetricVerifyNotFound)
		e.emitAudit(ctx, auditEventVerify, false, stores.Session{Token: token}, ErrSessionNotFound, nil)
		return VerifyResult{}, ErrSessionNotFound
	}

	switch outcome {
	case verifyMatched:
		return e.verified(ctx, rec, now), nil

	case verifyMismatch:
		e.metricInc(MetricVerifyMismatch)
		e.emitAudit(ctx, auditEventVerify, false, rec, nil, func() map[string]string {
			return map[string]string{"reason": "code_mismatch"}
		})
		return VerifyResult{AttemptsRemaining: rec.AttemptsRemaining()}, nil

	case verifyExpired:
		e.timers.Disarm(token)
		e.dispatch.Cancel(token)
		e.metricInc(MetricSessionExpired)
		err := sessionError(ErrSessionExpired, token, rec.AttemptsRemaining(), rec.ExpiresAt)
		e.emitAudit(ctx, auditEventVerify, false, rec, err, nil)
		return VerifyResult{}, err

	case verifyExhausted:
		e.timers.Disarm(token)
		e.dispatch.Cancel(token)
		e.metricInc(MetricVerifyMismatch)
		e.metricInc(MetricAttemptsExhausted)
		err := sessionError(ErrAttemptsExhausted, token, 0, rec.ExpiresAt)
		e.emitAudit(ctx, auditEventVerify, false, rec, err, nil)
		return VerifyResult{}, err

	case verifyAlreadyVerified:
		e.emitAudit(ctx, auditEventVerify, false, rec, ErrAlreadyVerified, nil)
		return VerifyResult{}, ErrAlreadyVerified

	default:
		e.metricInc(MetricVerifyNotFound)
		e.emitAudit(ctx, auditEventVerify, false, rec, ErrSessionNotFound, nil)
		return VerifyResult{}, ErrSessionNotFound
	}
}

func (e *Engine) verified(ctx context.Context, rec stores.Session, now time.Time) VerifyResult {
	e.dispatch.Cancel(rec.Token)
	if grace := e.config.Session.SuccessGrace; grace > 0 {
		e.timers.Arm(rec.Token, rec.Generation, now.Add(grace), e.onGrace)
	} else {
		e.timers.Disarm(rec.Token)
		e.store.Delete(rec.Token)
	}

	if e.limiter != nil {
		if err := e.limiter.ResetPhone(ctx, rec.PhoneNumber); err != nil {
			e.log.Warn().Err(err).Str("phone", internal.MaskPhone(rec.PhoneNumber)).Msg("reset initiate budget")
		}
	}

	result := VerifyResult{
		Verified:          true,
		AttemptsRemaining: rec.AttemptsRemaining(),
	}
	if e.receipts != nil {
		receipt, expiresAt, err := e.receipts.Issue(rec.Subject, rec.Token, rec.PhoneNumber, rec.Method)
		if err != nil {
			e.log.Error().Err(err).Str("token", rec.Token).Msg("issue verification receipt")
		} else {
			result.Receipt = receipt
			result.ReceiptExpiresAt = expiresAt
		}
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventVerify, true, rec, nil, func() map[string]string {
		return map[string]string{"receipt": boolString(result.Receipt != "")}
	})
	return result
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
