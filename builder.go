package goVerify

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"text/template"
	"time"

	internalaudit "github.com/MrEthical07/goVerify/internal/audit"
	"github.com/MrEthical07/goVerify/internal/delivery"
	"github.com/MrEthical07/goVerify/internal/expiry"
	"github.com/MrEthical07/goVerify/internal/limiters"
	"github.com/MrEthical07/goVerify/internal/stores"
	"github.com/MrEthical07/goVerify/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder defines a public type used by goVerify APIs.
//
// Builder instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. Call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	gateway   DeliveryGateway
	auditSink AuditSink
	log       zerolog.Logger
	clock     clockwork.Clock
	random    io.Reader

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithGateway sets the delivery gateway. Required.
func (b *Builder) WithGateway(gw DeliveryGateway) *Builder {
	b.gateway = gw
	return b
}

// WithRedis sets the client backing rate limits. Required when
// RateLimit.Enabled is set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. Without one, events
// are dropped even when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for engine and background-worker
// diagnostics. The default is a disabled logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClock replaces the wall clock. Tests pass a clockwork.FakeClock to
// drive expiry and delivery backoff.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithRandom replaces crypto/rand as the source for codes and tokens.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles delivery latency histograms. It has no
// effect while metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the engine's background work.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.gateway == nil {
		return nil, ErrGatewayRequired
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("rate limiting requires a redis client")
	}

	message, err := template.New("message").Option("missingkey=error").Parse(cfg.Delivery.MessageTemplate)
	if err != nil {
		return nil, fmt.Errorf("message template: %w", err)
	}

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}

	e := &Engine{
		config:  cfg,
		store:   stores.NewSessionStore(),
		timers:  expiry.NewTimers(clock),
		gateway: b.gateway,
		message: message,
		clock:   clock,
		random:  random,
		log:     b.log.With().Str("component", "goverify").Logger(),
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.Receipt.Enabled {
		e.receipts, err = jwt.NewManager(jwt.Config{
			TTL:           cfg.Receipt.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Receipt.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Receipt.PrivateKey),
			PublicKey:     cloneBytes(cfg.Receipt.PublicKey),
			Issuer:        cfg.Receipt.Issuer,
			Audience:      cfg.Receipt.Audience,
			Leeway:        cfg.Receipt.Leeway,
			KeyID:         cfg.Receipt.KeyID,
			Now:           clock.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("receipt manager: %w", err)
		}
	}

	e.dispatch, err = delivery.New(delivery.Config{
		MaxRetries:     cfg.Delivery.MaxRetries,
		Backoff:        append([]time.Duration(nil), cfg.Delivery.Backoff...),
		AttemptTimeout: cfg.Delivery.AttemptTimeout,
	}, clock, e.deliver, delivery.Hooks{
		Live:    e.deliveryLive,
		Attempt: e.observeAttempt,
	}, e.log)
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit.Enabled {
		e.limiter = limiters.NewPhoneVerificationLimiter(b.redis, cfg.RateLimit.RedisPrefix, limiters.PhoneVerificationConfig{
			InitiatePerPhone: cfg.RateLimit.InitiatePerPhone,
			InitiatePerIP:    cfg.RateLimit.InitiatePerIP,
			ResendPerSession: cfg.RateLimit.ResendPerSession,
			Window:           cfg.RateLimit.Window,
		})
	}

	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	if !cfg.Expiry.DisableSweeper {
		e.sweeper, err = expiry.NewSweeper(clock, cfg.Expiry.SweepInterval, e.Sweep, e.log)
		if err != nil {
			e.dispatch.Close()
			e.audit.Close()
			return nil, err
		}
		e.sweeper.Start()
	}

	b.built = true
	return e, nil
}
