package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goVerify "github.com/MrEthical07/goVerify"
)

type fakeSource struct {
	snapshot goVerify.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goVerify.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters:   map[goVerify.MetricID]uint64{},
			Histograms: map[goVerify.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters: map[goVerify.MetricID]uint64{
				goVerify.MetricVerifySuccess: 7,
			},
			Histograms: map[goVerify.MetricID][]uint64{
				goVerify.MetricGatewayLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "goverify_verify_success_total 7") {
		t.Fatalf("expected verify_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "goverify_initiate_success_total 0") {
		t.Fatalf("expected zero-valued counters in output, got:\n%s", out)
	}
	if !strings.Contains(out, "goverify_gateway_latency_seconds_bucket{le=\"0.05\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "goverify_gateway_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "goverify_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters:   map[goVerify.MetricID]uint64{goVerify.MetricCancel: 1},
			Histograms: map[goVerify.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExporterReadsEngine(t *testing.T) {
	engine, err := goVerify.New().
		WithGateway(goVerify.GatewayFunc(func(context.Context, goVerify.DeliveryMessage) error { return nil })).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	res, err := engine.Initiate(context.Background(), "+14155550123", goVerify.MethodSMS)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := engine.Cancel(context.Background(), res.Token); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{"goverify_initiate_success_total 1", "goverify_cancel_total 1", "goverify_delivery_attempt_total 1", "goverify_active_sessions 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters: map[goVerify.MetricID]uint64{
				goVerify.MetricInitiateSuccess: 1000,
				goVerify.MetricInitiateFailure: 40,
				goVerify.MetricVerifySuccess:   800,
				goVerify.MetricVerifyMismatch:  10,
				goVerify.MetricDeliveryAttempt: 1100,
				goVerify.MetricSessionExpired:  20,
				goVerify.MetricRateLimited:     3,
			},
			Histograms: map[goVerify.MetricID][]uint64{
				goVerify.MetricGatewayLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
