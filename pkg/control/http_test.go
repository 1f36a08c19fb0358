package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTP_Health(t *testing.T) {
	n := newStoppedNode(t, "alice")
	handler := NewHTTPHandler(n)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "ok" || body["id"] != n.ID().String() {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestHTTP_PeersAndNames(t *testing.T) {
	n := newStoppedNode(t, "alice")
	n.Table().Observe("bbbbbbb", "10.0.0.2", 6000, 1)
	n.Directory().Set("bbbbbbb", "bob")
	handler := NewHTTPHandler(n)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/peers", nil))

	var peers []Peer
	if err := json.NewDecoder(rec.Body).Decode(&peers); err != nil {
		t.Fatalf("Failed to decode peers: %v", err)
	}
	if len(peers) != 1 || peers[0].ID != "bbbbbbb" || peers[0].Name != "bob" {
		t.Errorf("Unexpected peers: %+v", peers)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/names", nil))

	var names map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatalf("Failed to decode names: %v", err)
	}
	if names["bbbbbbb"] != "bob" {
		t.Errorf("Expected bob, got %v", names)
	}
}

func TestHTTP_Metrics(t *testing.T) {
	n := newStoppedNode(t, "alice")
	handler := NewHTTPHandler(n)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in output")
	}
}

func TestHTTP_PostMessage(t *testing.T) {
	n := newRunningNode(t, "alice")
	n.Table().Observe("bbbbbbb", "127.0.0.1", 1, 1)
	handler := NewHTTPHandler(n)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"queued", `{"peer":"bbbbbbb","text":"hi"}`, http.StatusAccepted},
		{"unknown peer", `{"peer":"zzzzzzz","text":"hi"}`, http.StatusNotFound},
		{"empty text", `{"peer":"bbbbbbb","text":""}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body))
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}
