package goVerify

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goVerify/internal/audit"
	"github.com/MrEthical07/goVerify/internal/stores"
	"github.com/rs/zerolog"
)

// Method is the delivery channel requested by the caller. The engine passes
// it through to the gateway untouched.
type Method string

const (
	MethodWhatsApp Method = "whatsapp"
	MethodSMS      Method = "sms"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	return m == MethodWhatsApp || m == MethodSMS
}

// Status is the lifecycle state of a verification session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
)

func statusOf(s stores.Status) Status {
	return Status(s.String())
}

// InitiateResult is returned by [Engine.Initiate]. Reused is true when a
// live pending session for the same number was returned instead of a new one.
type InitiateResult struct {
	Token             string
	ExpiresAt         time.Time
	AttemptsRemaining int
	Reused            bool
}

// VerifyResult is returned by [Engine.Verify]. On a wrong code Verified is
// false and AttemptsRemaining tells the caller how many tries are left.
// Receipt is set on success when receipts are enabled.
type VerifyResult struct {
	Verified          bool
	AttemptsRemaining int
	Receipt           string
	ReceiptExpiresAt  time.Time
}

// ResendResult is returned by [Engine.Resend].
type ResendResult struct {
	ExpiresAt         time.Time
	AttemptsRemaining int
}

// CancelResult is returned by [Engine.Cancel].
type CancelResult struct {
	Existed bool
}

// SessionInfo is a code-free view of a session returned by [Engine.Status].
type SessionInfo struct {
	Token              string
	PhoneNumber        string
	Method             Method
	Status             Status
	AttemptsUsed       int
	AttemptsRemaining  int
	DeliveryRetryCount int
	CreatedAt          time.Time
	ExpiresAt          time.Time
	VerifiedAt         time.Time
}

func sessionInfo(s stores.Session) SessionInfo {
	return SessionInfo{
		Token:              s.Token,
		PhoneNumber:        s.PhoneNumber,
		Method:             Method(s.Method),
		Status:             statusOf(s.Status),
		AttemptsUsed:       s.AttemptsUsed,
		AttemptsRemaining:  s.AttemptsRemaining(),
		DeliveryRetryCount: s.DeliveryRetryCount,
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
		VerifiedAt:         s.VerifiedAt,
	}
}

// Receipt is the verified content of a verification receipt.
type Receipt struct {
	Subject      string
	SessionToken string
	PhoneNumber  string
	Method       Method
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink is an [AuditSink] that logs events through zerolog.
type ZerologSink = internalaudit.ZerologSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZerologSink creates a [ZerologSink] writing to log.
func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(log)
}
