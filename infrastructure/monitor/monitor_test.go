package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.UpdateStreamState(4, "streaming")
	m.UpdateStreamState(5, "backoff")
	m.RecordStreamMessage("trade")
	m.RecordStreamMessage("trade")
	m.RecordStreamDropped("malformed", 3)
	m.RecordStreamDropped("malformed", 0)
	m.RecordReconnect()

	if got := testutil.ToFloat64(m.streamState); got != 5 {
		t.Errorf("Expected stream_state to be 5, got %f", got)
	}
	if got := testutil.ToFloat64(m.streamTransitions.WithLabelValues("streaming")); got != 1 {
		t.Errorf("Expected one transition to streaming, got %f", got)
	}
	if got := testutil.ToFloat64(m.streamMessages.WithLabelValues("trade")); got != 2 {
		t.Errorf("Expected 2 trade messages, got %f", got)
	}
	if got := testutil.ToFloat64(m.streamDropped.WithLabelValues("malformed")); got != 3 {
		t.Errorf("Expected 3 dropped, got %f", got)
	}
	if got := testutil.ToFloat64(m.streamReconnects); got != 1 {
		t.Errorf("Expected 1 reconnect, got %f", got)
	}
}

func TestRESTAndHTTPMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordRESTRequest("bars")
	m.RecordRESTError("bars")
	m.RecordRESTLatency("bars", 0.2)
	m.RecordHTTPRequest("/bars", 200, 0.21)
	m.RecordQuoteLookup("miss")

	if got := testutil.ToFloat64(m.restRequests.WithLabelValues("bars")); got != 1 {
		t.Errorf("Expected 1 rest request, got %f", got)
	}
	if got := testutil.ToFloat64(m.restErrors.WithLabelValues("bars")); got != 1 {
		t.Errorf("Expected 1 rest error, got %f", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/bars", "200")); got != 1 {
		t.Errorf("Expected 1 http request, got %f", got)
	}
	if got := testutil.ToFloat64(m.quoteLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("Expected 1 miss, got %f", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "bridge_rest_requests_total") {
		t.Errorf("metrics output missing rest counter:\n%s", body)
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	m.UpdateStreamState(1, "connecting")
	m.RecordStreamMessage("quote")
	m.RecordStreamDropped("unknown", 1)
	m.RecordReconnect()
	m.UpdateLastStreamUpdate(1)
	m.RecordQuoteLookup("hit")
	m.RecordRESTRequest("bars")
	m.RecordRESTError("bars")
	m.RecordRESTLatency("bars", 1)
	m.RecordHTTPRequest("/", 200, 0.1)
}
