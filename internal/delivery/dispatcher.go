package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var (
	ErrDispatcherClosed = errors.New("delivery dispatcher closed")
	ErrNilSendFunc      = errors.New("nil delivery send func")
)

// Result classifies how a Send resolved.
type Result uint8

const (
	// Delivered means one attempt succeeded.
	Delivered Result = iota + 1
	// Failed means every attempt failed or the dispatcher closed.
	Failed
	// Superseded means the owning session was cancelled, resent or removed
	// before delivery finished.
	Superseded
)

// String returns the lowercase result name.
func (r Result) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Outcome is the eventual result of a Send.
type Outcome struct {
	Result   Result
	Attempts int
	Err      error
}

// Request is one code delivery bound to a session generation.
type Request struct {
	Token       string
	Generation  uint64
	Destination string
	Method      string
	Body        string
}

// SendFunc performs exactly one gateway attempt.
type SendFunc func(ctx context.Context, req Request) error

// Hooks connects the dispatcher to session state. All hooks are optional
// and are never called with dispatcher locks held.
type Hooks struct {
	// Live reports whether the session generation still wants delivery.
	// Checked before every attempt, the first one included.
	Live func(token string, generation uint64) bool
	// Attempt observes every finished gateway attempt.
	Attempt func(req Request, attempt int, latency time.Duration, err error)
}

// Config controls retry policy.
type Config struct {
	MaxRetries     int
	Backoff        []time.Duration
	AttemptTimeout time.Duration
}

// DefaultConfig mirrors the production retry schedule.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		Backoff:        []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
		AttemptTimeout: 30 * time.Second,
	}
}

type job struct {
	req      Request
	attempts int
	timer    clockwork.Timer
	cancel   context.CancelFunc
	out      chan Outcome
	done     bool
}

// Dispatcher runs deliveries asynchronously and schedules retries on a
// clock. At most one delivery is tracked per token; a newer Send for the
// same token supersedes the older one.
type Dispatcher struct {
	cfg   Config
	send  SendFunc
	hooks Hooks
	clock clockwork.Clock
	log   zerolog.Logger

	ctx      context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	pending map[string]*job
	closed  bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. A nil clock uses the wall clock.
func New(cfg Config, clock clockwork.Clock, send SendFunc, hooks Hooks, log zerolog.Logger) (*Dispatcher, error) {
	if send == nil {
		return nil, ErrNilSendFunc
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		send:     send,
		hooks:    hooks,
		clock:    clock,
		log:      log.With().Str("component", "delivery").Logger(),
		ctx:      ctx,
		shutdown: cancel,
		pending:  make(map[string]*job),
	}, nil
}

// Send starts delivery and returns immediately. The channel receives
// exactly one Outcome.
func (d *Dispatcher) Send(req Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	j := &job{req: req, out: out}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		out <- Outcome{Result: Failed, Err: ErrDispatcherClosed}
		return out
	}
	if prev := d.pending[req.Token]; prev != nil {
		if prev.req.Generation > req.Generation {
			// a newer generation already owns the token
			d.mu.Unlock()
			out <- Outcome{Result: Superseded}
			return out
		}
		d.stopLocked(prev)
		d.finishLocked(prev, Outcome{Result: Superseded, Attempts: prev.attempts})
	}
	d.pending[req.Token] = j
	d.wg.Add(1)
	d.mu.Unlock()

	go d.attempt(j)
	return out
}

// Cancel drops any in-flight or scheduled delivery for token. It reports
// whether a delivery was tracked.
func (d *Dispatcher) Cancel(token string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	j := d.pending[token]
	if j == nil {
		return false
	}
	d.stopLocked(j)
	d.finishLocked(j, Outcome{Result: Superseded, Attempts: j.attempts})
	return true
}

// CancelGeneration is Cancel restricted to deliveries at or below
// generation, so a caller giving up on its own request never stops a newer
// one for the same token.
func (d *Dispatcher) CancelGeneration(token string, generation uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	j := d.pending[token]
	if j == nil || j.req.Generation > generation {
		return false
	}
	d.stopLocked(j)
	d.finishLocked(j, Outcome{Result: Superseded, Attempts: j.attempts})
	return true
}

// Pending returns the number of tracked deliveries.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close resolves every tracked delivery as failed and waits for running
// attempts to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, j := range d.pending {
		d.stopLocked(j)
		d.finishLocked(j, Outcome{Result: Failed, Attempts: j.attempts, Err: ErrDispatcherClosed})
	}
	d.mu.Unlock()

	d.shutdown()
	d.wg.Wait()
}

func (d *Dispatcher) attempt(j *job) {
	defer d.wg.Done()

	d.mu.Lock()
	if j.done {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if d.hooks.Live != nil && !d.hooks.Live(j.req.Token, j.req.Generation) {
		d.log.Debug().
			Str("token", j.req.Token).
			Uint64("generation", j.req.Generation).
			Msg("dropping stale delivery")
		d.mu.Lock()
		d.finishLocked(j, Outcome{Result: Superseded, Attempts: j.attempts})
		d.mu.Unlock()
		return
	}

	ctx, cancel := d.attemptContext()
	d.mu.Lock()
	if j.done {
		d.mu.Unlock()
		cancel()
		return
	}
	j.cancel = cancel
	d.mu.Unlock()

	start := d.clock.Now()
	err := d.send(ctx, j.req)
	latency := d.clock.Since(start)
	cancel()

	d.mu.Lock()
	j.attempts++
	j.cancel = nil
	attempts := j.attempts
	done := j.done
	d.mu.Unlock()

	if d.hooks.Attempt != nil {
		d.hooks.Attempt(j.req, attempts, latency, err)
	}
	if done {
		return
	}

	if err == nil {
		d.mu.Lock()
		d.finishLocked(j, Outcome{Result: Delivered, Attempts: attempts})
		d.mu.Unlock()
		return
	}

	d.log.Warn().
		Err(err).
		Str("token", j.req.Token).
		Str("method", j.req.Method).
		Int("attempt", attempts).
		Msg("delivery attempt failed")

	if attempts > d.cfg.MaxRetries {
		d.log.Error().
			Err(err).
			Str("token", j.req.Token).
			Int("attempts", attempts).
			Msg("delivery retries exhausted")
		d.mu.Lock()
		d.finishLocked(j, Outcome{Result: Failed, Attempts: attempts, Err: err})
		d.mu.Unlock()
		return
	}

	delay := d.delay(attempts)

	d.mu.Lock()
	defer d.mu.Unlock()
	if j.done || d.closed {
		return
	}
	d.log.Info().
		Str("token", j.req.Token).
		Int("attempt", attempts+1).
		Dur("delay", delay).
		Msg("delivery retry scheduled")
	d.wg.Add(1)
	j.timer = d.clock.AfterFunc(delay, func() { d.attempt(j) })
}

func (d *Dispatcher) attemptContext() (context.Context, context.CancelFunc) {
	if d.cfg.AttemptTimeout > 0 {
		return context.WithTimeout(d.ctx, d.cfg.AttemptTimeout)
	}
	return context.WithCancel(d.ctx)
}

// delay returns the wait before retry n (1-based); the last configured
// delay repeats.
func (d *Dispatcher) delay(n int) time.Duration {
	if len(d.cfg.Backoff) == 0 {
		return 0
	}
	idx := n - 1
	if idx >= len(d.cfg.Backoff) {
		idx = len(d.cfg.Backoff) - 1
	}
	return d.cfg.Backoff[idx]
}

func (d *Dispatcher) stopLocked(j *job) {
	if j.timer != nil {
		if j.timer.Stop() {
			d.wg.Done()
		}
		j.timer = nil
	}
	if j.cancel != nil {
		j.cancel()
	}
}

func (d *Dispatcher) finishLocked(j *job, o Outcome) {
	if j.done {
		return
	}
	j.done = true
	if d.pending[j.req.Token] == j {
		delete(d.pending, j.req.Token)
	}
	j.out <- o
}
