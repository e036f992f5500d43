package goVerify

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVerify/internal"
	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/MrEthical07/goVerify/internal/stores"
)

const (
	auditEventInitiate           = "verification_initiate"
	auditEventVerify             = "verification_verify"
	auditEventResend             = "verification_resend"
	auditEventCancel             = "verification_cancel"
	auditEventExpired            = "verification_expired"
	auditEventSwept              = "verification_swept"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label written to [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrInvalidPhone      AuditErrorCode = "invalid_phone"
	auditErrInvalidMethod     AuditErrorCode = "invalid_method"
	auditErrSessionNotFound   AuditErrorCode = "session_not_found"
	auditErrAlreadyVerified   AuditErrorCode = "already_verified"
	auditErrExpired           AuditErrorCode = "expired"
	auditErrAttemptsExhausted AuditErrorCode = "attempts_exhausted"
	auditErrDeliveryFailed    AuditErrorCode = "delivery_failed"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrCancelled         AuditErrorCode = "cancelled"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	rec stores.Session,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	subject := rec.Subject
	if subject == "" {
		subject = SubjectFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    e.clock.Now().UTC(),
		EventType:    eventType,
		Subject:      subject,
		SessionToken: rec.Token,
		Phone:        internal.MaskPhone(rec.PhoneNumber),
		Method:       rec.Method,
		IP:           ClientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if rec.Token != "" {
		event.Status = rec.Status.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, rec stores.Session) {
	e.metricInc(MetricRateLimited)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, rec, ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

// mapRateError translates limiter errors into engine sentinels.
func mapRateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return ErrRateLimiterUnavailable
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidPhoneNumber):
		return auditErrInvalidPhone
	case errors.Is(err, ErrInvalidMethod):
		return auditErrInvalidMethod
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionExpired):
		return auditErrExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return auditErrAttemptsExhausted
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRateLimiterUnavailable):
		return auditErrUnavailable
	case isContextErr(err):
		return auditErrCancelled
	default:
		return auditErrInternal
	}
}
