package middleware

import (
	"context"
	"net/http"
	"strings"

	goVerify "github.com/MrEthical07/goVerify"
)

// ReceiptHeader carries the receipt returned by a successful Verify.
const ReceiptHeader = "X-Verification-Receipt"

type receiptContextKey struct{}

// ReceiptFromContext returns the receipt injected by [RequireReceipt].
func ReceiptFromContext(ctx context.Context) (*goVerify.Receipt, bool) {
	r, ok := ctx.Value(receiptContextKey{}).(*goVerify.Receipt)
	return r, ok
}

// RequireReceipt rejects requests without a valid verification receipt. The
// receipt is read from [ReceiptHeader], falling back to a bearer token.
func RequireReceipt(engine *goVerify.Engine) func(http.Handler) http.Handler {
	return RequireReceiptFor(engine, nil)
}

// RequireReceiptFor is RequireReceipt with an additional subject check: the
// receipt's subject must equal subject(r). A nil subject func skips the check.
func RequireReceiptFor(engine *goVerify.Engine, subject func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "verification required", http.StatusForbidden)
				return
			}

			token, ok := receiptToken(r)
			if !ok {
				http.Error(w, "verification required", http.StatusForbidden)
				return
			}

			receipt, err := engine.ParseReceipt(token)
			if err != nil {
				http.Error(w, "verification required", http.StatusForbidden)
				return
			}
			if subject != nil && receipt.Subject != subject(r) {
				http.Error(w, "verification required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), receiptContextKey{}, receipt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func receiptToken(r *http.Request) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get(ReceiptHeader)); v != "" {
		return v, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
