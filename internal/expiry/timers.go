package expiry

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Callback receives the token and the generation the timer was armed for.
type Callback func(token string, generation uint64)

type slot struct {
	generation uint64
	timer      clockwork.Timer
}

// Timers keeps at most one armed timer per session token.
type Timers struct {
	clock clockwork.Clock

	mu      sync.Mutex
	slots   map[string]*slot
	stopped bool
}

// NewTimers creates an empty timer set. A nil clock uses the wall clock.
func NewTimers(clock clockwork.Clock) *Timers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timers{
		clock: clock,
		slots: make(map[string]*slot),
	}
}

// Arm schedules fn at the given instant, replacing any timer already armed
// for token at the same or an older generation. A replaced timer never
// invokes its callback. Arm reports false when a newer generation holds the
// slot and nothing was scheduled.
func (t *Timers) Arm(token string, generation uint64, at time.Time, fn Callback) bool {
	if token == "" || fn == nil {
		return false
	}
	d := at.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if old := t.slots[token]; old != nil {
		if old.generation > generation {
			return false
		}
		old.timer.Stop()
	}

	s := &slot{generation: generation}
	s.timer = t.clock.AfterFunc(d, func() { t.fire(token, s, fn) })
	t.slots[token] = s
	return true
}

// Disarm stops the timer for token. It reports whether one was armed.
func (t *Timers) Disarm(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slots[token]
	if s == nil {
		return false
	}
	s.timer.Stop()
	delete(t.slots, token)
	return true
}

// Armed returns the generation currently armed for token.
func (t *Timers) Armed(token string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slots[token]
	if s == nil {
		return 0, false
	}
	return s.generation, true
}

// Len returns the number of armed timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Stop disarms everything and rejects further Arm calls.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for token, s := range t.slots {
		s.timer.Stop()
		delete(t.slots, token)
	}
}

func (t *Timers) fire(token string, s *slot, fn Callback) {
	t.mu.Lock()
	if t.slots[token] != s {
		t.mu.Unlock()
		return
	}
	delete(t.slots, token)
	t.mu.Unlock()

	fn(token, s.generation)
}
