package goVerify

import "context"

type clientIPContextKey struct{}
type subjectContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP initiate throttling and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithSubject attaches the identity of the account changing its phone
// number. It is recorded on the session and copied into audit events and
// receipts; the engine does not authenticate it.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// ClientIPFromContext returns the address set by [WithClientIP].
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// SubjectFromContext returns the identity set by [WithSubject].
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	subject, _ := ctx.Value(subjectContextKey{}).(string)
	return subject
}
