package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.RecordBeaconSent(true)
	m.RecordBeaconReceived("valid")
	m.UpdateLivePeers(3)
	m.RecordDial(false)
	m.UpdateOpenChannels(1)
	m.RecordSent("text")
	m.RecordReceived("text")
	m.RecordDropped("peer_unknown")
	m.UpdateQueueDepth("outbound", 2)

	if m.Registry() != nil {
		t.Error("Expected nil registry for nil metrics")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("lanchat")

	m.RecordBeaconSent(true)
	m.RecordBeaconSent(false)
	m.RecordBeaconSent(true)
	m.RecordDial(true)
	m.RecordDropped("peer_unknown")

	if got := testutil.ToFloat64(m.BeaconsSent.WithLabelValues("ok")); got != 2 {
		t.Errorf("Expected 2 ok beacons, got %v", got)
	}
	if got := testutil.ToFloat64(m.BeaconsSent.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed beacon, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChannelsCreated); got != 1 {
		t.Errorf("Expected 1 channel created, got %v", got)
	}
	if got := testutil.ToFloat64(m.MessagesDropped.WithLabelValues("peer_unknown")); got != 1 {
		t.Errorf("Expected 1 dropped message, got %v", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two nodes in one process must not collide on registration
	a := NewMetrics("lanchat")
	b := NewMetrics("lanchat")

	a.RecordSent("text")
	if got := testutil.ToFloat64(b.MessagesSent.WithLabelValues("text")); got != 0 {
		t.Errorf("Expected independent counters, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("lanchat")
	m.UpdateLivePeers(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lanchat_live_peers 4") {
		t.Errorf("Expected live peers gauge in output")
	}
}
