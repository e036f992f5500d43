package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/redis/go-redis/v9"
)

// PhoneVerificationConfig sets per-window budgets. A zero budget disables
// that dimension.
type PhoneVerificationConfig struct {
	InitiatePerPhone int
	InitiatePerIP    int
	ResendPerSession int
	Window           time.Duration
}

// PhoneVerificationLimiter throttles code issuance per destination number,
// per client IP and per session.
type PhoneVerificationLimiter struct {
	window *rate.Window
	config PhoneVerificationConfig
}

// NewPhoneVerificationLimiter builds a limiter whose Redis keys start with
// prefix.
func NewPhoneVerificationLimiter(redisClient redis.UniversalClient, prefix string, cfg PhoneVerificationConfig) *PhoneVerificationLimiter {
	return &PhoneVerificationLimiter{
		window: rate.NewWindow(redisClient, prefix),
		config: cfg,
	}
}

// CheckInitiate counts one initiate for the phone number and, when known,
// the client IP.
func (l *PhoneVerificationLimiter) CheckInitiate(ctx context.Context, phone, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.window.Allow(ctx, initiatePhoneKey(phone), l.config.InitiatePerPhone, l.config.Window); err != nil {
		return err
	}
	if ip != "" {
		if err := l.window.Allow(ctx, initiateIPKey(ip), l.config.InitiatePerIP, l.config.Window); err != nil {
			return err
		}
	}
	return nil
}

// CheckResend counts one resend for the session token.
func (l *PhoneVerificationLimiter) CheckResend(ctx context.Context, token string) error {
	if l == nil {
		return nil
	}
	return l.window.Allow(ctx, resendKey(token), l.config.ResendPerSession, l.config.Window)
}

// ResetPhone clears the initiate counter for a number, used after a
// successful verification.
func (l *PhoneVerificationLimiter) ResetPhone(ctx context.Context, phone string) error {
	if l == nil {
		return nil
	}
	return l.window.Reset(ctx, initiatePhoneKey(phone))
}

func initiatePhoneKey(phone string) string {
	return "pvi:" + phone
}

func initiateIPKey(ip string) string {
	return "pvip:" + ip
}

func resendKey(token string) string {
	return "pvr:" + token
}
