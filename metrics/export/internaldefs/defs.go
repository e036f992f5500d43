package internaldefs

import (
	goVerify "github.com/MrEthical07/goVerify"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goVerify.MetricInitiateSuccess, Name: "goverify_initiate_success_total", Help: "Verification sessions created and delivered."},
	{ID: goVerify.MetricInitiateReused, Name: "goverify_initiate_reused_total", Help: "Initiate calls answered with an existing pending session."},
	{ID: goVerify.MetricInitiateFailure, Name: "goverify_initiate_failure_total", Help: "Initiate calls that did not yield a session."},
	{ID: goVerify.MetricDeliveryAttempt, Name: "goverify_delivery_attempt_total", Help: "Gateway delivery attempts."},
	{ID: goVerify.MetricDeliveryRetry, Name: "goverify_delivery_retry_total", Help: "Gateway delivery attempts after the first for a code."},
	{ID: goVerify.MetricDeliveryFailure, Name: "goverify_delivery_failure_total", Help: "Codes whose delivery retries were exhausted."},
	{ID: goVerify.MetricVerifySuccess, Name: "goverify_verify_success_total", Help: "Correct verification codes."},
	{ID: goVerify.MetricVerifyMismatch, Name: "goverify_verify_mismatch_total", Help: "Wrong verification codes."},
	{ID: goVerify.MetricVerifyNotFound, Name: "goverify_verify_not_found_total", Help: "Verify calls against unknown sessions."},
	{ID: goVerify.MetricSessionExpired, Name: "goverify_session_expired_total", Help: "Sessions removed after their deadline."},
	{ID: goVerify.MetricAttemptsExhausted, Name: "goverify_attempts_exhausted_total", Help: "Sessions removed after running out of attempts."},
	{ID: goVerify.MetricResendSuccess, Name: "goverify_resend_success_total", Help: "Delivered resends."},
	{ID: goVerify.MetricResendFailure, Name: "goverify_resend_failure_total", Help: "Resends that did not deliver."},
	{ID: goVerify.MetricCancel, Name: "goverify_cancel_total", Help: "Cancelled sessions."},
	{ID: goVerify.MetricSweepEvicted, Name: "goverify_sweep_evicted_total", Help: "Sessions removed by the periodic sweep."},
	{ID: goVerify.MetricRateLimited, Name: "goverify_rate_limited_total", Help: "Requests denied by a rate limiter."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goVerify.MetricGatewayLatency, Name: "goverify_gateway_latency_seconds", Help: "Delivery gateway call latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix spells each bound for use inside instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// ActiveSessionsName is the gauge of sessions currently held by the engine.
const ActiveSessionsName = "goverify_active_sessions"

// NormalizeBuckets copies a snapshot histogram into a fixed array; missing
// buckets read as zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
