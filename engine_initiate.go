package goVerify

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goVerify/internal"
	"github.com/MrEthical07/goVerify/internal/delivery"
	"github.com/MrEthical07/goVerify/internal/stores"
)

// tokenCollisionRetries bounds token regeneration on the astronomically
// unlikely event of a collision.
const tokenCollisionRetries = 3

// Initiate starts verification of phone over method and blocks until the
// code is delivered, every delivery attempt fails, or ctx is done.
//
// When a live pending session already exists for phone, its token is
// returned with Reused set and no new code is sent. An empty method selects
// Delivery.DefaultMethod. On delivery failure the session is discarded and
// the error wraps ErrDeliveryFailed. If ctx ends first the session is
// cancelled and ctx.Err is returned.
func (e *Engine) Initiate(ctx context.Context, phone string, method Method) (InitiateResult, error) {
	if err := e.ready(); err != nil {
		return InitiateResult{}, err
	}

	probe := stores.Session{PhoneNumber: phone, Method: string(method)}
	if !phonePattern.MatchString(phone) {
		return InitiateResult{}, e.initiateFailed(ctx, probe, ErrInvalidPhoneNumber)
	}
	method, err := e.resolveMethod(method)
	if err != nil {
		return InitiateResult{}, e.initiateFailed(ctx, probe, err)
	}
	probe.Method = string(method)

	now := e.clock.Now()
	if existing, ok := e.store.FindPendingByPhone(phone, now); ok {
		return e.reused(ctx, existing), nil
	}

	if e.limiter != nil {
		if err := mapRateError(e.limiter.CheckInitiate(ctx, phone, ClientIPFromContext(ctx))); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "initiate", probe)
			}
			return InitiateResult{}, e.initiateFailed(ctx, probe, err)
		}
	}

	code, err := internal.NewOTPFrom(e.random, e.config.Session.CodeDigits)
	if err != nil {
		return InitiateResult{}, e.initiateFailed(ctx, probe, fmt.Errorf("generate code: %w", err))
	}
	body, err := e.renderMessage(code, method)
	if err != nil {
		return InitiateResult{}, e.initiateFailed(ctx, probe, fmt.Errorf("render message: %w", err))
	}

	rec := stores.Session{
		PhoneNumber: phone,
		Method:      string(method),
		Subject:     SubjectFromContext(ctx),
		CodeHash:    internal.HashCode(code),
		AttemptsMax: e.config.Session.MaxAttempts,
		Generation:  1,
		Status:      stores.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.Session.TTL),
	}

	for i := 0; i < tokenCollisionRetries; i++ {
		rec.Token, err = internal.NewSessionTokenFrom(e.random)
		if err != nil {
			return InitiateResult{}, e.initiateFailed(ctx, probe, fmt.Errorf("generate token: %w", err))
		}
		err = e.store.Create(rec, now)
		if !errors.Is(err, stores.ErrTokenExists) {
			break
		}
	}
	switch {
	case errors.Is(err, stores.ErrPhonePending):
		// a concurrent Initiate for the same number won the race
		if existing, ok := e.store.FindPendingByPhone(phone, now); ok {
			return e.reused(ctx, existing), nil
		}
		return InitiateResult{}, e.initiateFailed(ctx, probe, fmt.Errorf("create session: %w", err))
	case err != nil:
		return InitiateResult{}, e.initiateFailed(ctx, probe, fmt.Errorf("create session: %w", err))
	}

	e.timers.Arm(rec.Token, rec.Generation, rec.ExpiresAt, e.onExpiry)

	outcome, err := e.awaitDelivery(ctx, delivery.Request{
		Token:       rec.Token,
		Generation:  rec.Generation,
		Destination: phone,
		Method:      string(method),
		Body:        body,
	})
	if err != nil {
		if removed, ok := e.discard(rec.Token, rec.Generation, stores.StatusFailed); ok {
			rec = removed
		}
		return InitiateResult{}, e.initiateFailed(ctx, rec, err)
	}

	switch outcome.Result {
	case delivery.Delivered:
	case delivery.Superseded:
		// a resend or cancel took over the session while we waited
		current, err := e.pendingResult(rec.Token)
		if err != nil {
			return InitiateResult{}, e.initiateFailed(ctx, rec, err)
		}
		rec = current
	default:
		e.metricInc(MetricDeliveryFailure)
		if removed, ok := e.discard(rec.Token, rec.Generation, stores.StatusFailed); ok {
			rec = removed
		}
		return InitiateResult{}, e.initiateFailed(ctx, rec, deliveryError(outcome))
	}

	e.metricInc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventInitiate, true, rec, nil, func() map[string]string {
		return map[string]string{"attempts": fmt.Sprint(outcome.Attempts)}
	})

	return InitiateResult{
		Token:             rec.Token,
		ExpiresAt:         rec.ExpiresAt,
		AttemptsRemaining: rec.AttemptsRemaining(),
	}, nil
}

func (e *Engine) reused(ctx context.Context, rec stores.Session) InitiateResult {
	e.metricInc(MetricInitiateReused)
	e.emitAudit(ctx, auditEventInitiate, true, rec, nil, func() map[string]string {
		return map[string]string{"reused": "true"}
	})
	return InitiateResult{
		Token:             rec.Token,
		ExpiresAt:         rec.ExpiresAt,
		AttemptsRemaining: rec.AttemptsRemaining(),
		Reused:            true,
	}
}

func (e *Engine) initiateFailed(ctx context.Context, rec stores.Session, err error) error {
	e.metricInc(MetricInitiateFailure)
	e.emitAudit(ctx, auditEventInitiate, false, rec, err, nil)
	return err
}

func deliveryError(o delivery.Outcome) error {
	if o.Err == nil {
		return ErrDeliveryFailed
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, o.Err)
}
