package goVerify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const testPhone = "+14155550123"

var errGatewayDown = errors.New("gateway down")

// recordingGateway records every message. Calls for which fail returns true
// are reported as failures; a non-nil block holds each call until closed.
type recordingGateway struct {
	mu    sync.Mutex
	msgs  []DeliveryMessage
	fail  func(call int) bool
	block chan struct{}
}

func (g *recordingGateway) Deliver(ctx context.Context, msg DeliveryMessage) error {
	g.mu.Lock()
	g.msgs = append(g.msgs, msg)
	call := len(g.msgs)
	fail := g.fail
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil && fail(call) {
		return errGatewayDown
	}
	return nil
}

func (g *recordingGateway) setFail(fn func(call int) bool) {
	g.mu.Lock()
	g.fail = fn
	g.mu.Unlock()
}

func (g *recordingGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.msgs)
}

// LastCode returns the last delivered body, which testConfig renders as the
// bare code.
func (g *recordingGateway) LastCode(t *testing.T) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.msgs) == 0 {
		t.Fatal("no message delivered")
	}
	return g.msgs[len(g.msgs)-1].Body
}

func (g *recordingGateway) Last() DeliveryMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.msgs) == 0 {
		return DeliveryMessage{}
	}
	return g.msgs[len(g.msgs)-1]
}

func alwaysFail(int) bool { return true }

// skewClock shifts Now without moving timers, so deadlines pass while
// session timers stay unfired.
type skewClock struct {
	clockwork.Clock
	offset atomic.Int64
}

func newSkewClock() *skewClock {
	return &skewClock{Clock: clockwork.NewFakeClock()}
}

func (c *skewClock) Now() time.Time {
	return c.Clock.Now().Add(time.Duration(c.offset.Load()))
}

func (c *skewClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *skewClock) Skew(d time.Duration) {
	c.offset.Add(int64(d))
}

// pausingClock blocks the caller of the nth Now after pauseOnCall until
// release is closed.
type pausingClock struct {
	clockwork.Clock
	mu        sync.Mutex
	countdown int
	paused    chan struct{}
	release   chan struct{}
}

func newPausingClock() *pausingClock {
	return &pausingClock{Clock: clockwork.NewFakeClock()}
}

func (c *pausingClock) pauseOnCall(n int) (paused <-chan struct{}, release chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countdown = n
	c.paused = make(chan struct{})
	c.release = make(chan struct{})
	return c.paused, c.release
}

func (c *pausingClock) Now() time.Time {
	c.mu.Lock()
	hit := false
	if c.countdown > 0 {
		c.countdown--
		hit = c.countdown == 0
	}
	paused, release := c.paused, c.release
	c.mu.Unlock()

	if hit {
		close(paused)
		<-release
	}
	return c.Clock.Now()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delivery.Backoff = []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	cfg.Delivery.AttemptTimeout = time.Second
	cfg.Delivery.MessageTemplate = "{{.Code}}"
	cfg.Expiry.DisableSweeper = true
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, gw DeliveryGateway, opts ...func(*Builder)) *Engine {
	t.Helper()

	b := New().WithConfig(cfg).WithGateway(gw)
	for _, opt := range opts {
		opt(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func withClock(c clockwork.Clock) func(*Builder) {
	return func(b *Builder) { b.WithClock(c) }
}

func mustInitiate(t *testing.T, e *Engine, phone string) InitiateResult {
	t.Helper()
	res, err := e.Initiate(context.Background(), phone, MethodWhatsApp)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return res
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
