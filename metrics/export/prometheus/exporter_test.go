package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perch "github.com/perchlabs/perch"
)

type fakeSource struct {
	snapshot perch.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() perch.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: perch.MetricsSnapshot{
			Counters:   map[perch.MetricID]uint64{},
			Histograms: map[perch.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: perch.MetricsSnapshot{
			Counters: map[perch.MetricID]uint64{
				perch.MetricLoginSuccess:   7,
				perch.MetricLoginSuspended: 3,
			},
			Histograms: map[perch.MetricID][]uint64{
				perch.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "perch_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "perch_login_suspended_total 3") {
		t.Fatalf("expected login_suspended counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "perch_login_latency_seconds_bucket{le=\"0.25\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "perch_login_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "perch_login_latency_seconds_count 36") {
		t.Fatalf("expected histogram count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "perch_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestRenderMissingCountersDefaultToZero(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: perch.MetricsSnapshot{
			Counters: map[perch.MetricID]uint64{
				perch.MetricLoginSuccess: 1,
			},
			Histograms: map[perch.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	if !strings.Contains(out, "perch_login_failure_total 0") {
		t.Fatalf("expected absent counter rendered as zero, got:\n%s", out)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: perch.MetricsSnapshot{
			Counters: map[perch.MetricID]uint64{
				perch.MetricLoginSuccess: 1,
			},
			Histograms: map[perch.MetricID][]uint64{},
		},
	})

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "perch_login_success_total 1") {
		t.Fatalf("expected counter in body, got:\n%s", body)
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var exp *PrometheusExporter
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty render on nil exporter, got %q", got)
	}
}
