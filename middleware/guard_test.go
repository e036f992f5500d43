package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	goVerify "github.com/MrEthical07/goVerify"
)

type lastMessage struct {
	mu   sync.Mutex
	body string
}

func (l *lastMessage) Deliver(_ context.Context, msg goVerify.DeliveryMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.body = msg.Body
	return nil
}

func (l *lastMessage) code() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.body
}

func newReceiptEngine(t *testing.T) (*goVerify.Engine, *lastMessage) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := goVerify.DefaultConfig()
	cfg.Delivery.MessageTemplate = "{{.Code}}"
	cfg.Expiry.DisableSweeper = true
	cfg.Receipt.Enabled = true
	cfg.Receipt.PrivateKey = priv
	cfg.Receipt.PublicKey = pub

	gw := &lastMessage{}
	engine, err := goVerify.New().WithConfig(cfg).WithGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, gw
}

func issueReceipt(t *testing.T, engine *goVerify.Engine, gw *lastMessage, subject string) string {
	t.Helper()
	ctx := goVerify.WithSubject(context.Background(), subject)
	res, err := engine.Initiate(ctx, "+14155550123", goVerify.MethodSMS)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	got, err := engine.Verify(ctx, res.Token, gw.code())
	if err != nil || !got.Verified {
		t.Fatalf("Verify: %+v %v", got, err)
	}
	return got.Receipt
}

func receiptEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receipt, ok := ReceiptFromContext(r.Context())
		if !ok {
			t.Error("receipt missing from context")
			return
		}
		_, _ = w.Write([]byte(receipt.PhoneNumber))
	})
}

func TestRequireReceipt(t *testing.T) {
	engine, gw := newReceiptEngine(t)
	receipt := issueReceipt(t, engine, gw, "user-1")
	h := RequireReceipt(engine)(receiptEcho(t))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"header", ReceiptHeader, receipt, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + receipt, http.StatusOK},
		{"missing", "", "", http.StatusForbidden},
		{"tampered", ReceiptHeader, receipt + "x", http.StatusForbidden},
		{"empty bearer", "Authorization", "Bearer ", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/phone", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && rec.Body.String() != "+14155550123" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestRequireReceiptForChecksSubject(t *testing.T) {
	engine, gw := newReceiptEngine(t)
	receipt := issueReceipt(t, engine, gw, "user-1")

	for subject, status := range map[string]int{"user-1": http.StatusOK, "user-2": http.StatusForbidden} {
		h := RequireReceiptFor(engine, func(*http.Request) string { return subject })(receiptEcho(t))
		req := httptest.NewRequest(http.MethodPost, "/phone", nil)
		req.Header.Set(ReceiptHeader, receipt)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != status {
			t.Fatalf("subject %s: status = %d, want %d", subject, rec.Code, status)
		}
	}
}

func TestRequireReceiptNilEngine(t *testing.T) {
	h := RequireReceipt(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler reached without an engine")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	var seen string
	h := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = goVerify.ClientIPFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "203.0.113.9" {
		t.Fatalf("client ip = %q", seen)
	}
}
