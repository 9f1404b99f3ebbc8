package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("Echo.Echo", StatusOK, 10*time.Millisecond)
	m.ObserveRequest("Echo.Echo", StatusOK, 20*time.Millisecond)
	m.ObserveRequest("", StatusRejected, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("Echo.Echo", StatusOK)); got != 2 {
		t.Fatalf("expect 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("unknown", StatusRejected)); got != 1 {
		t.Fatalf("expect 1 rejected request, got %v", got)
	}
}

func TestCountersAndGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SendFailed()
	m.RateLimited()
	m.RateLimited()
	m.SetRegisteredClients(3)
	m.Pushed(StatusOK)

	if got := testutil.ToFloat64(m.sendFailures); got != 1 {
		t.Fatalf("expect 1 send failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 2 {
		t.Fatalf("expect 2 rate limited, got %v", got)
	}
	if got := testutil.ToFloat64(m.clients); got != 3 {
		t.Fatalf("expect 3 clients, got %v", got)
	}
	if got := testutil.ToFloat64(m.pushes.WithLabelValues(StatusOK)); got != 1 {
		t.Fatalf("expect 1 push, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("Echo.Echo", StatusOK, time.Millisecond)
	m.SendFailed()
	m.RateLimited()
	m.SetRegisteredClients(1)
	m.Pushed(StatusError)
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("Echo.Echo", StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "rpc_server_requests_total") {
		t.Fatalf("expect request counter in output, got:\n%s", rec.Body.String())
	}
}
