package goVerify

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goVerify/internal"
	"github.com/rs/zerolog"
)

// DeliveryMessage is one rendered code message.
type DeliveryMessage struct {
	Destination string
	Method      Method
	Body        string
}

// DeliveryGateway transmits a message over some channel. Deliver is a single
// best-effort attempt; the engine owns retry policy. Implementations must be
// safe for concurrent use and should honor ctx cancellation.
type DeliveryGateway interface {
	Deliver(ctx context.Context, msg DeliveryMessage) error
}

// GatewayFunc adapts a function to [DeliveryGateway].
type GatewayFunc func(ctx context.Context, msg DeliveryMessage) error

// Deliver calls f(ctx, msg).
func (f GatewayFunc) Deliver(ctx context.Context, msg DeliveryMessage) error {
	return f(ctx, msg)
}

// MethodRouter dispatches to a gateway per delivery method.
type MethodRouter map[Method]DeliveryGateway

// Deliver forwards msg to the gateway registered for msg.Method. An unknown
// method fails with [ErrInvalidMethod] and is not retried usefully.
func (r MethodRouter) Deliver(ctx context.Context, msg DeliveryMessage) error {
	gw, ok := r[msg.Method]
	if !ok || gw == nil {
		return fmt.Errorf("%w: no gateway for %q", ErrInvalidMethod, msg.Method)
	}
	return gw.Deliver(ctx, msg)
}

// LogGateway writes messages to a logger instead of a transport. Intended
// for local development; it logs the message body, code included.
type LogGateway struct {
	log zerolog.Logger
}

// NewLogGateway returns a gateway that logs each message at info level.
func NewLogGateway(log zerolog.Logger) *LogGateway {
	return &LogGateway{log: log}
}

// Deliver logs msg with the destination masked. It fails only when ctx is
// already done.
func (g *LogGateway) Deliver(ctx context.Context, msg DeliveryMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.log.Info().
		Str("phone", internal.MaskPhone(msg.Destination)).
		Str("method", string(msg.Method)).
		Str("body", msg.Body).
		Msg("verification message")
	return nil
}
