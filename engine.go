package goVerify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	internalaudit "github.com/MrEthical07/goVerify/internal/audit"
	"github.com/MrEthical07/goVerify/internal/delivery"
	"github.com/MrEthical07/goVerify/internal/expiry"
	"github.com/MrEthical07/goVerify/internal/limiters"
	"github.com/MrEthical07/goVerify/internal/stores"
	"github.com/MrEthical07/goVerify/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// phonePattern accepts E.164 numbers: a leading +, no leading zero, 2 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Engine defines a public type used by goVerify APIs.
//
// Engine instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. Build one with
// [Builder]; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	store    *stores.SessionStore
	dispatch *delivery.Dispatcher
	timers   *expiry.Timers
	sweeper  *expiry.Sweeper
	limiter  *limiters.PhoneVerificationLimiter
	receipts *jwt.Manager
	gateway  DeliveryGateway
	message  *template.Template
	clock    clockwork.Clock
	random   io.Reader
	log      zerolog.Logger
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
}

// Close stops background work: the sweep job, scheduled delivery retries,
// session timers and the audit dispatcher. Pending Initiate and Resend calls
// resolve with ErrDeliveryFailed. Close is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.sweeper != nil {
			if err := e.sweeper.Shutdown(); err != nil {
				e.log.Warn().Err(err).Msg("sweeper shutdown")
			}
		}
		if e.dispatch != nil {
			e.dispatch.Close()
		}
		if e.timers != nil {
			e.timers.Stop()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ActiveSessions returns the number of stored sessions, including verified
// sessions still in their grace window.
func (e *Engine) ActiveSessions() int {
	if e == nil || e.store == nil {
		return 0
	}
	return e.store.Len()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) resolveMethod(m Method) (Method, error) {
	if m == "" {
		return e.config.Delivery.DefaultMethod, nil
	}
	if !m.Valid() {
		return "", ErrInvalidMethod
	}
	return m, nil
}

type messageData struct {
	Code             string
	ExpiresInMinutes int
	Method           Method
}

func (e *Engine) renderMessage(code string, method Method) (string, error) {
	var buf bytes.Buffer
	err := e.message.Execute(&buf, messageData{
		Code:             code,
		ExpiresInMinutes: int(math.Ceil(e.config.Session.TTL.Minutes())),
		Method:           method,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// deliver adapts the dispatcher to the configured gateway.
func (e *Engine) deliver(ctx context.Context, req delivery.Request) error {
	return e.gateway.Deliver(ctx, DeliveryMessage{
		Destination: req.Destination,
		Method:      Method(req.Method),
		Body:        req.Body,
	})
}

// deliveryLive tells the dispatcher whether a retry still serves the session.
func (e *Engine) deliveryLive(token string, generation uint64) bool {
	rec, err := e.store.Get(token)
	if err != nil {
		return false
	}
	return rec.Status == stores.StatusPending &&
		rec.Generation == generation &&
		!rec.Expired(e.clock.Now())
}

// observeAttempt records gateway metrics and the retry count for the code
// currently owned by the session.
func (e *Engine) observeAttempt(req delivery.Request, attempt int, latency time.Duration, err error) {
	e.metricInc(MetricDeliveryAttempt)
	if e.metrics != nil {
		e.metrics.Observe(MetricGatewayLatency, latency)
	}
	if attempt <= 1 {
		return
	}
	e.metricInc(MetricDeliveryRetry)
	_, _, _ = e.store.Update(req.Token, func(s *stores.Session) stores.Action {
		if s.Generation != req.Generation || s.Status != stores.StatusPending {
			return stores.Keep
		}
		s.DeliveryRetryCount = attempt - 1
		return stores.Save
	})
}

// awaitDelivery waits for a dispatch outcome or ctx, whichever comes first.
// On ctx expiry the delivery for this generation is cancelled and ctx.Err
// is returned; a newer generation's delivery is left running.
func (e *Engine) awaitDelivery(ctx context.Context, req delivery.Request) (delivery.Outcome, error) {
	ch := e.dispatch.Send(req)
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		e.dispatch.CancelGeneration(req.Token, req.Generation)
		return delivery.Outcome{}, ctx.Err()
	}
}

// discard removes the session at the given generation and stops its timer
// and deliveries. It reports whether this call removed it.
func (e *Engine) discard(token string, generation uint64, status stores.Status) (stores.Session, bool) {
	rec, action, err := e.store.Update(token, func(s *stores.Session) stores.Action {
		if s.Generation != generation {
			return stores.Keep
		}
		s.Status = status
		return stores.Remove
	})
	if err != nil || action != stores.Remove {
		return stores.Session{}, false
	}
	e.timers.Disarm(token)
	e.dispatch.Cancel(token)
	return rec, true
}

func (e *Engine) pendingResult(token string) (stores.Session, error) {
	rec, err := e.store.Get(token)
	if err != nil {
		return stores.Session{}, ErrSessionNotFound
	}
	if rec.Status != stores.StatusPending {
		return stores.Session{}, ErrSessionNotFound
	}
	return rec, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
