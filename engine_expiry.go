package goVerify

import (
	"context"

	"github.com/MrEthical07/goVerify/internal/stores"
)

// onExpiry runs when a session deadline timer fires. A timer armed for an
// older generation is stale: Resend re-arms with the new deadline.
func (e *Engine) onExpiry(token string, generation uint64) {
	rec, action, err := e.store.Update(token, func(s *stores.Session) stores.Action {
		if s.Generation != generation || s.Status != stores.StatusPending {
			return stores.Keep
		}
		s.Status = stores.StatusExpired
		return stores.Remove
	})
	if err != nil || action != stores.Remove {
		return
	}
	e.expired(context.Background(), rec)
}

// onGrace removes a verified session once its grace window has passed.
func (e *Engine) onGrace(token string, generation uint64) {
	_, _, _ = e.store.Update(token, func(s *stores.Session) stores.Action {
		if s.Generation != generation || s.Status != stores.StatusVerified {
			return stores.Keep
		}
		return stores.Remove
	})
}

func (e *Engine) expired(ctx context.Context, rec stores.Session) {
	e.timers.Disarm(rec.Token)
	e.dispatch.Cancel(rec.Token)
	e.metricInc(MetricSessionExpired)
	e.emitAudit(ctx, auditEventExpired, false, rec, ErrSessionExpired, nil)
	e.log.Debug().Str("token", rec.Token).Msg("verification session expired")
}

// Sweep removes every session past its deadline and every terminal session
// whose grace window is over, and returns how many it removed. It backs up
// the per-session timers and runs on Expiry.SweepInterval unless the
// sweeper is disabled.
func (e *Engine) Sweep(ctx context.Context) int {
	if e == nil || e.store == nil {
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := e.clock.Now()
	grace := e.config.Session.SuccessGrace
	evicted := 0
	for _, token := range e.store.Tokens() {
		if ctx.Err() != nil {
			break
		}
		rec, action, err := e.store.Update(token, func(s *stores.Session) stores.Action {
			switch {
			case s.Status == stores.StatusVerified:
				if now.Before(s.VerifiedAt.Add(grace)) {
					return stores.Keep
				}
				return stores.Remove
			case s.Status.Terminal():
				return stores.Remove
			case s.Expired(now):
				s.Status = stores.StatusExpired
				return stores.Remove
			}
			return stores.Keep
		})
		if err != nil || action != stores.Remove {
			continue
		}

		evicted++
		e.timers.Disarm(token)
		e.dispatch.Cancel(token)
		if rec.Status == stores.StatusExpired {
			e.metricInc(MetricSessionExpired)
		}
		e.emitAudit(ctx, auditEventSwept, true, rec, nil, nil)
	}

	if evicted > 0 {
		e.metrics.Add(MetricSweepEvicted, uint64(evicted))
		e.log.Info().Int("evicted", evicted).Msg("verification sweep")
	}
	return evicted
}
