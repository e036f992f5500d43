package goVerify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInitiateDeliversCode(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	start := time.Now()
	res, err := e.Initiate(context.Background(), testPhone, MethodSMS)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if !strings.HasPrefix(res.Token, "pv_") {
		t.Fatalf("unexpected token %q", res.Token)
	}
	if res.Reused {
		t.Fatal("fresh session reported as reused")
	}
	if res.AttemptsRemaining != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.AttemptsRemaining)
	}
	if res.ExpiresAt.Before(start.Add(9*time.Minute)) || res.ExpiresAt.After(time.Now().Add(10*time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}

	msg := gw.Last()
	if msg.Destination != testPhone || msg.Method != MethodSMS {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(msg.Body) != 6 {
		t.Fatalf("expected 6-digit code, got %q", msg.Body)
	}

	info, err := e.Status(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != StatusPending || info.PhoneNumber != testPhone || info.DeliveryRetryCount != 0 {
		t.Fatalf("unexpected status %+v", info)
	}
}

func TestInitiateRejectsInvalidPhone(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	for _, phone := range []string{"", "14155550123", "+0123456", "+1", "+1234567890123456", "+1415555a123", "+1 415 555 0123"} {
		_, err := e.Initiate(context.Background(), phone, MethodSMS)
		if !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("phone %q: expected ErrInvalidPhoneNumber, got %v", phone, err)
		}
	}
	if gw.Calls() != 0 {
		t.Fatalf("gateway called %d times", gw.Calls())
	}
	if e.ActiveSessions() != 0 {
		t.Fatal("invalid initiate created a session")
	}
}

func TestInitiateAcceptsBoundaryLengths(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingGateway{})

	for _, phone := range []string{"+12", "+123456789012345"} {
		if _, err := e.Initiate(context.Background(), phone, MethodSMS); err != nil {
			t.Errorf("phone %q: %v", phone, err)
		}
	}
}

func TestInitiateMethodSelection(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	if _, err := e.Initiate(context.Background(), testPhone, Method("email")); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
	if _, err := e.Initiate(context.Background(), testPhone, ""); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if got := gw.Last().Method; got != MethodWhatsApp {
		t.Fatalf("expected default method whatsapp, got %q", got)
	}
}

func TestInitiateReusesPendingSession(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)

	first := mustInitiate(t, e, testPhone)
	second := mustInitiate(t, e, testPhone)

	if second.Token != first.Token || !second.Reused {
		t.Fatalf("expected reuse of %q, got %+v", first.Token, second)
	}
	if gw.Calls() != 1 {
		t.Fatalf("expected one delivery, got %d", gw.Calls())
	}

	other := mustInitiate(t, e, "+14155550199")
	if other.Token == first.Token {
		t.Fatal("different phone shared a session")
	}
}

func TestInitiateRetriesThenDelivers(t *testing.T) {
	gw := &recordingGateway{fail: func(call int) bool { return call <= 2 }}
	e := newTestEngine(t, testConfig(), gw)

	res := mustInitiate(t, e, testPhone)
	if gw.Calls() != 3 {
		t.Fatalf("expected 3 gateway calls, got %d", gw.Calls())
	}

	info, err := e.Status(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.DeliveryRetryCount != 2 {
		t.Fatalf("expected 2 retries, got %d", info.DeliveryRetryCount)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricDeliveryAttempt] != 3 || snap.Counters[MetricDeliveryRetry] != 2 {
		t.Fatalf("unexpected delivery counters %+v", snap.Counters)
	}
}

func TestInitiateDeliveryFailureDiscardsSession(t *testing.T) {
	gw := &recordingGateway{fail: alwaysFail}
	e := newTestEngine(t, testConfig(), gw)

	_, err := e.Initiate(context.Background(), testPhone, MethodWhatsApp)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if gw.Calls() != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d", gw.Calls())
	}
	if e.ActiveSessions() != 0 {
		t.Fatalf("failed session left behind: %d", e.ActiveSessions())
	}

	gw.setFail(nil)
	res := mustInitiate(t, e, testPhone)
	if res.Reused {
		t.Fatal("discarded session was reused")
	}
	if got := e.MetricsSnapshot().Counters[MetricDeliveryFailure]; got != 1 {
		t.Fatalf("expected 1 delivery failure, got %d", got)
	}
}

func TestInitiateContextCancelled(t *testing.T) {
	gw := &recordingGateway{block: make(chan struct{})}
	e := newTestEngine(t, testConfig(), gw)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Initiate(ctx, testPhone, MethodSMS)
		errCh <- err
	}()

	waitFor(t, func() bool { return gw.Calls() == 1 })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Initiate did not return after cancel")
	}
	if e.ActiveSessions() != 0 {
		t.Fatal("cancelled initiate left a session")
	}
}

func TestVerifyCorrectCode(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)
	res := mustInitiate(t, e, testPhone)

	got, err := e.Verify(context.Background(), res.Token, gw.LastCode(t))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !got.Verified || got.AttemptsRemaining != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Receipt != "" {
		t.Fatal("receipt issued while receipts are disabled")
	}

	info, err := e.Status(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Status during grace: %v", err)
	}
	if info.Status != StatusVerified || info.VerifiedAt.IsZero() {
		t.Fatalf("unexpected status %+v", info)
	}

	_, err = e.Verify(context.Background(), res.Token, gw.LastCode(t))
	if !errors.Is(err, ErrAlreadyVerified) || !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)
	res := mustInitiate(t, e, testPhone)

	got, err := e.Verify(context.Background(), res.Token, "  "+gw.LastCode(t)+"\n")
	if err != nil || !got.Verified {
		t.Fatalf("expected verified, got %+v %v", got, err)
	}
}

func TestVerifyWrongCodeExhaustsAttempts(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)
	res := mustInitiate(t, e, testPhone)

	for _, want := range []int{2, 1} {
		got, err := e.Verify(context.Background(), res.Token, "wrong")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got.Verified || got.AttemptsRemaining != want {
			t.Fatalf("expected %d remaining, got %+v", want, got)
		}
	}

	_, err := e.Verify(context.Background(), res.Token, "wrong")
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.AttemptsRemaining != 0 || verr.Token != res.Token {
		t.Fatalf("expected VerificationError with no attempts left, got %#v", err)
	}

	_, err = e.Verify(context.Background(), res.Token, gw.LastCode(t))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after exhaustion, got %v", err)
	}
	if e.ActiveSessions() != 0 {
		t.Fatal("exhausted session left behind")
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingGateway{})

	_, err := e.Verify(context.Background(), "pv_missing", "123456")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricVerifyNotFound]; got != 1 {
		t.Fatalf("expected 1 not-found, got %d", got)
	}
}

func TestCancelRemovesSession(t *testing.T) {
	gw := &recordingGateway{}
	e := newTestEngine(t, testConfig(), gw)
	res := mustInitiate(t, e, testPhone)

	got, err := e.Cancel(context.Background(), res.Token)
	if err != nil || !got.Existed {
		t.Fatalf("expected existing session cancelled, got %+v %v", got, err)
	}
	if _, err := e.Status(context.Background(), res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := e.Verify(context.Background(), res.Token, gw.LastCode(t)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cancelled code still verifies: %v", err)
	}

	again, err := e.Cancel(context.Background(), res.Token)
	if err != nil || again.Existed {
		t.Fatalf("second cancel: %+v %v", again, err)
	}

	next := mustInitiate(t, e, testPhone)
	if next.Reused || next.Token == res.Token {
		t.Fatal("cancelled session was reused")
	}
}

func TestStatusUnknownToken(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingGateway{})

	if _, err := e.Status(context.Background(), "pv_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestClosedEngineNotReady(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingGateway{})
	res := mustInitiate(t, e, testPhone)
	e.Close()
	e.Close()

	if _, err := e.Initiate(context.Background(), testPhone, MethodSMS); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Initiate: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Verify(context.Background(), res.Token, "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Verify: expected ErrEngineNotReady, got %v", err)
	}

	var nilEngine *Engine
	if _, err := nilEngine.Status(context.Background(), res.Token); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("nil engine: expected ErrEngineNotReady, got %v", err)
	}
}
