package stores

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrSessionNotFound = errors.New("verification session not found")
	ErrTokenExists     = errors.New("verification session token already exists")
	ErrPhonePending    = errors.New("pending verification session exists for phone number")
	ErrInvalidSession  = errors.New("invalid verification session")
)

// Status is the lifecycle state of a verification session.
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusExpired
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusExpired:
		return "expired"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Session is one in-flight phone verification. Values handed out by the
// store are copies; mutate only through Update.
type Session struct {
	Token              string
	PhoneNumber        string
	Method             string
	Subject            string
	CodeHash           [32]byte
	AttemptsUsed       int
	AttemptsMax        int
	DeliveryRetryCount int
	Generation         uint64
	Status             Status
	CreatedAt          time.Time
	ExpiresAt          time.Time
	VerifiedAt         time.Time
}

// Expired reports whether now is past the session deadline.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AttemptsRemaining never goes negative.
func (s Session) AttemptsRemaining() int {
	if s.AttemptsUsed >= s.AttemptsMax {
		return 0
	}
	return s.AttemptsMax - s.AttemptsUsed
}

// Action tells Update what to do with the mutated copy.
type Action uint8

const (
	// Keep discards the mutated copy.
	Keep Action = iota
	// Save commits the mutated copy.
	Save
	// Remove commits the mutated copy as the final state and drops the session.
	Remove
)

// Mutation edits a private copy of the session while the per-session lock
// is held. It must not block.
type Mutation func(*Session) Action

type entry struct {
	mu        sync.Mutex
	rec       Session
	removed   bool
	expiresAt atomic.Int64
}

// SessionStore maps session tokens to records. Operations on one token are
// serialized; distinct tokens proceed in parallel.
//
// Lock order is entry.mu before SessionStore.mu.
type SessionStore struct {
	mu      sync.RWMutex
	byToken map[string]*entry
	byPhone map[string]string
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byToken: make(map[string]*entry),
		byPhone: make(map[string]string),
	}
}

// Create inserts a new session. It fails with ErrTokenExists on a token
// collision and with ErrPhonePending when a live pending session already
// owns the phone number.
func (s *SessionStore) Create(rec Session, now time.Time) error {
	if rec.Token == "" || rec.PhoneNumber == "" || rec.AttemptsMax <= 0 {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[rec.Token]; ok {
		return ErrTokenExists
	}

	if rec.Status == StatusPending {
		if token, ok := s.byPhone[rec.PhoneNumber]; ok {
			if e := s.byToken[token]; e != nil && now.UnixNano() <= e.expiresAt.Load() {
				return ErrPhonePending
			}
			// past its deadline; the timer or sweep reclaims the old record
			delete(s.byPhone, rec.PhoneNumber)
		}
	}

	e := &entry{rec: rec}
	e.expiresAt.Store(rec.ExpiresAt.UnixNano())
	s.byToken[rec.Token] = e
	if rec.Status == StatusPending {
		s.byPhone[rec.PhoneNumber] = rec.Token
	}
	return nil
}

// Get returns a copy of the session.
func (s *SessionStore) Get(token string) (Session, error) {
	e := s.lookup(token)
	if e == nil {
		return Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return Session{}, ErrSessionNotFound
	}
	return e.rec, nil
}

// Update runs fn against a copy of the session under the session lock and
// applies the returned Action. The returned Session is the committed state
// for Save and Remove, and the untouched state for Keep.
func (s *SessionStore) Update(token string, fn Mutation) (Session, Action, error) {
	if fn == nil {
		return Session{}, Keep, ErrInvalidSession
	}
	e := s.lookup(token)
	if e == nil {
		return Session{}, Keep, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return Session{}, Keep, ErrSessionNotFound
	}

	next := e.rec
	action := fn(&next)
	next.Token = e.rec.Token
	next.PhoneNumber = e.rec.PhoneNumber
	next.Method = e.rec.Method

	switch action {
	case Save:
		wasPending := e.rec.Status == StatusPending
		e.rec = next
		e.expiresAt.Store(next.ExpiresAt.UnixNano())
		if wasPending && next.Status != StatusPending {
			s.unindexPhone(next.PhoneNumber, token)
		}
		return next, Save, nil
	case Remove:
		e.rec = next
		e.removed = true
		s.drop(token, next.PhoneNumber)
		return next, Remove, nil
	default:
		return e.rec, Keep, nil
	}
}

// Delete removes the session. Deleting an absent token is a no-op that
// reports false.
func (s *SessionStore) Delete(token string) (Session, bool) {
	e := s.lookup(token)
	if e == nil {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return Session{}, false
	}
	e.removed = true
	s.drop(token, e.rec.PhoneNumber)
	return e.rec, true
}

// FindPendingByPhone returns the live pending session for a phone number.
func (s *SessionStore) FindPendingByPhone(phone string, now time.Time) (Session, bool) {
	s.mu.RLock()
	token, ok := s.byPhone[phone]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	rec, err := s.Get(token)
	if err != nil {
		return Session{}, false
	}
	if rec.Status != StatusPending || rec.Expired(now) {
		return Session{}, false
	}
	return rec, true
}

// Tokens returns a point-in-time snapshot of stored tokens.
func (s *SessionStore) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byToken))
	for token := range s.byToken {
		out = append(out, token)
	}
	return out
}

// Len returns the number of stored sessions, terminal ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}

func (s *SessionStore) lookup(token string) *entry {
	if token == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byToken[token]
}

func (s *SessionStore) drop(token, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byToken, token)
	if s.byPhone[phone] == token {
		delete(s.byPhone, phone)
	}
}

func (s *SessionStore) unindexPhone(phone, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byPhone[phone] == token {
		delete(s.byPhone, phone)
	}
}
