package goVerify

import (
	"context"

	"github.com/MrEthical07/goVerify/internal/stores"
)

// Cancel abandons the session immediately: it is removed, its timer and any
// scheduled delivery retry are stopped. Cancelling an unknown token is not an
// error; CancelResult.Existed reports whether anything was removed.
func (e *Engine) Cancel(ctx context.Context, token string) (CancelResult, error) {
	if err := e.ready(); err != nil {
		return CancelResult{}, err
	}

	rec, ok := e.store.Delete(token)
	e.timers.Disarm(token)
	e.dispatch.Cancel(token)
	if !ok {
		return CancelResult{}, nil
	}

	previous := rec.Status
	if rec.Status == stores.StatusPending {
		rec.Status = stores.StatusFailed
	}

	e.metricInc(MetricCancel)
	e.emitAudit(ctx, auditEventCancel, true, rec, nil, func() map[string]string {
		return map[string]string{"previous_status": previous.String()}
	})
	return CancelResult{Existed: true}, nil
}
