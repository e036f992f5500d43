package goVerify

import (
	"context"

	"github.com/MrEthical07/goVerify/internal/stores"
)

// Status returns a code-free view of the session. A verified session is
// still visible during its grace window. A pending session found past its
// deadline is removed and reported as ErrSessionExpired even if its timer
// has not fired yet.
func (e *Engine) Status(ctx context.Context, token string) (SessionInfo, error) {
	if err := e.ready(); err != nil {
		return SessionInfo{}, err
	}

	now := e.clock.Now()
	expired := false
	rec, _, err := e.store.Update(token, func(s *stores.Session) stores.Action {
		if s.Status == stores.StatusPending && s.Expired(now) {
			expired = true
			s.Status = stores.StatusExpired
			return stores.Remove
		}
		return stores.Keep
	})
	if err != nil {
		return SessionInfo{}, ErrSessionNotFound
	}
	if expired {
		e.expired(ctx, rec)
		return SessionInfo{}, sessionError(ErrSessionExpired, token, rec.AttemptsRemaining(), rec.ExpiresAt)
	}
	return sessionInfo(rec), nil
}
