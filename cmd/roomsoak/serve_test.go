// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testState() *soakState {
	return &soakState{
		runID:     "soak-test",
		profile:   "smoke",
		rooms:     4,
		seed:      42,
		startedAt: time.Now().Add(-time.Second),
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := newRouter(testState())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want ok", rec.Body.String())
	}
}

func TestRouter_ReadyzGate(t *testing.T) {
	state := testState()
	router := newRouter(state)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before ready: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	state.ready.Store(true)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("after ready: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_StatusEndpoint(t *testing.T) {
	state := testState()
	router := newRouter(state)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var st runStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.RunID != "soak-test" {
		t.Errorf("run id = %s, want soak-test", st.RunID)
	}
	if st.Profile != "smoke" || st.Rooms != 4 || st.Seed != 42 {
		t.Errorf("unexpected status payload: %+v", st)
	}
	if st.UptimeSeconds <= 0 {
		t.Errorf("uptime = %f, want > 0", st.UptimeSeconds)
	}
	if st.ReportReady {
		t.Error("report should not be ready before publish")
	}

	state.publishReport([]byte(`{}`))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.ReportReady {
		t.Error("report should be ready after publish")
	}
}

func TestRouter_ReportEndpoint(t *testing.T) {
	state := testState()
	router := newRouter(state)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("before publish: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	want := `{"run_id":"soak-test","verdict":"PASS"}`
	state.publishReport([]byte(want))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("after publish: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != want {
		t.Errorf("body = %s, want %s", rec.Body.String(), want)
	}
}

func TestShouldTrace(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", false},
		{"/readyz", false},
		{"/metrics", false},
		{"/api/v1/status", true},
		{"/api/v1/report", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := shouldTrace(req); got != tt.want {
			t.Errorf("shouldTrace(%s) = %t, want %t", tt.path, got, tt.want)
		}
	}
}

func TestSpanName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	if got := spanName("HTTP GET", req); got != "HTTP GET /api/v1/status" {
		t.Errorf("spanName = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status?verbose=1", nil)
	if got := spanName("HTTP GET", req); got != "HTTP GET /api/v1/status?" {
		t.Errorf("spanName with query = %q", got)
	}
}

func TestInitTelemetry_Disabled(t *testing.T) {
	t.Setenv("ROOMSOAK_TELEMETRY_ENABLED", "false")

	provider, err := initTelemetry(context.Background(), testLogger())
	if err != nil {
		t.Fatalf("initTelemetry: %v", err)
	}
	if provider != nil {
		t.Error("expected nil provider when disabled")
	}
}

func TestInitTelemetry_InvalidExporter(t *testing.T) {
	t.Setenv("ROOMSOAK_TELEMETRY_ENABLED", "true")
	t.Setenv("ROOMSOAK_TELEMETRY_EXPORTER", "bogus")

	if _, err := initTelemetry(context.Background(), testLogger()); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestParseRate(t *testing.T) {
	if got := parseRate("0.25"); got != 0.25 {
		t.Errorf("parseRate(0.25) = %f", got)
	}
	if got := parseRate("nonsense"); got != 0 {
		t.Errorf("parseRate(nonsense) = %f, want 0", got)
	}
}
