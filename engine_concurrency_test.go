package goVerify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentVerifyRespectsAttemptLimit(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingGateway{})
	res := mustInitiate(t, e, testPhone)

	const workers = 24
	var mismatches, exhausted, notFound, other atomic.Int32

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			got, err := e.Verify(context.Background(), res.Token, "wrong")
			switch {
			case err == nil && !got.Verified:
				mismatches.Add(1)
			case errors.Is(err, ErrAttemptsExhausted):
				exhausted.Add(1)
			case errors.Is(err, ErrSessionNotFound):
				notFound.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if mismatches.Load() != 2 || exhausted.Load() != 1 {
		t.Fatalf("expected 2 mismatches and 1 exhaustion, got %d and %d", mismatches.Load(), exhausted.Load())
	}
	if notFound.Load() != workers-3 || other.Load() != 0 {
		t.Fatalf("unexpected outcomes: notFound=%d other=%d", notFound.Load(), other.Load())
	}
}

func TestConcurrentVerifyCorrectCodeSucceedsOnce(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)
	res := mustInitiate(t, e, testPhone)
	code := gw.LastCode(t)

	const workers = 16
	var verified, already atomic.Int32

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			got, err := e.Verify(context.Background(), res.Token, code)
			switch {
			case err == nil && got.Verified:
				verified.Add(1)
			case errors.Is(err, ErrAlreadyVerified):
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	if verified.Load() != 1 || already.Load() != workers-1 {
		t.Fatalf("expected exactly one success, got verified=%d already=%d", verified.Load(), already.Load())
	}
}

func TestConcurrentInitiateSharesOneSession(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	const workers = 16
	tokens := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := e.Initiate(context.Background(), testPhone, MethodWhatsApp)
			tokens[i] = res.Token
			errs[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range tokens {
		if errs[i] != nil {
			t.Fatalf("initiate %d: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Fatalf("initiate %d returned %q, want %q", i, tokens[i], tokens[0])
		}
	}
	if gw.Calls() != 1 {
		t.Fatalf("expected one delivery, got %d", gw.Calls())
	}
	if e.ActiveSessions() != 1 {
		t.Fatalf("expected one session, got %d", e.ActiveSessions())
	}
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	phones := []string{"+14155550101", "+14155550102", "+14155550103", "+14155550104"}
	var wg sync.WaitGroup
	wg.Add(len(phones))
	for _, phone := range phones {
		go func(phone string) {
			defer wg.Done()
			res, err := e.Initiate(context.Background(), phone, MethodSMS)
			if err != nil {
				t.Errorf("Initiate %s: %v", phone, err)
				return
			}
			if _, err := e.Cancel(context.Background(), res.Token); err != nil {
				t.Errorf("Cancel %s: %v", phone, err)
			}
		}(phone)
	}
	wg.Wait()

	if e.ActiveSessions() != 0 {
		t.Fatalf("expected no sessions, got %d", e.ActiveSessions())
	}
	if got := e.MetricsSnapshot().Counters[MetricCancel]; got != uint64(len(phones)) {
		t.Fatalf("expected %d cancels, got %d", len(phones), got)
	}
}

func TestConcurrentResendKeepsNewestGeneration(t *testing.T) {
	clock := newPausingClock()
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw, withClock(clock))
	res := mustInitiate(t, e, testPhone)

	// the first resend stops after saving its generation, before arming its
	// timer and dispatching; the second runs to completion meanwhile
	paused, release := clock.pauseOnCall(2)
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Resend(context.Background(), res.Token)
		firstErr <- err
	}()
	select {
	case <-paused:
	case <-time.After(5 * time.Second):
		t.Fatal("first resend never reached its timer")
	}

	if _, err := e.Resend(context.Background(), res.Token); err != nil {
		t.Fatalf("second Resend: %v", err)
	}
	newest := gw.LastCode(t)

	close(release)
	select {
	case err := <-firstErr:
		if err != nil {
			t.Fatalf("first Resend: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first resend did not return")
	}

	if gw.Calls() != 2 {
		t.Fatalf("outdated resend reached the gateway: %d calls", gw.Calls())
	}
	rec, err := e.store.Get(res.Token)
	if err != nil {
		t.Fatalf("session lost: %v", err)
	}
	if rec.Generation != 3 {
		t.Fatalf("expected generation 3, got %d", rec.Generation)
	}
	if gen, ok := e.timers.Armed(res.Token); !ok || gen != rec.Generation {
		t.Fatalf("expiry timer armed for generation %d ok=%v, session at %d", gen, ok, rec.Generation)
	}

	v, err := e.Verify(context.Background(), res.Token, newest)
	if err != nil || !v.Verified {
		t.Fatalf("last delivered code rejected: %+v %v", v, err)
	}
}
