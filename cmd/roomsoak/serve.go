// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// soakState is the run state the HTTP surface exposes.
type soakState struct {
	runID     string
	profile   string
	rooms     int
	seed      int64
	startedAt time.Time

	ready  atomic.Bool
	report atomic.Pointer[[]byte]
}

// publishReport makes the final report available on /api/v1/report.
func (s *soakState) publishReport(data []byte) {
	s.report.Store(&data)
}

// runStatus is the payload served by /api/v1/status.
type runStatus struct {
	RunID         string    `json:"run_id"`
	Profile       string    `json:"profile"`
	Rooms         int       `json:"rooms"`
	Seed          int64     `json:"seed"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_s"`
	ReportReady   bool      `json:"report_ready"`
}

// newRouter builds the HTTP surface: prometheus registry, health probes and
// the run API, all behind tracing and a rate limit.
func newRouter(state *soakState) http.Handler {
	r := chi.NewRouter()
	r.Use(tracing("roomsoak"))
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !state.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/api/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		st := runStatus{
			RunID:         state.runID,
			Profile:       state.profile,
			Rooms:         state.rooms,
			Seed:          state.seed,
			StartedAt:     state.startedAt,
			UptimeSeconds: time.Since(state.startedAt).Seconds(),
			ReportReady:   state.report.Load() != nil,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	r.Get("/api/v1/report", func(w http.ResponseWriter, _ *http.Request) {
		data := state.report.Load()
		w.Header().Set("Content-Type", "application/json")
		if data == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"report not ready"}`))
			return
		}
		_, _ = w.Write(*data)
	})

	return r
}

// startHTTP serves the soak's HTTP surface while the run is in flight, so a
// long run can be scraped and probed like a service. The returned function
// shuts the server down.
func startHTTP(addr string, state *soakState, logger zerolog.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           newRouter(state),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics, health and run API")

	return srv.Shutdown, nil
}

// tracing wraps the handler with OpenTelemetry HTTP instrumentation. Health
// and metrics probes are filtered out to keep the trace stream quiet.
func tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(semconv.ServiceName(serviceName)),
			),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// spanName keeps span names readable without leaking query values.
func spanName(operation string, r *http.Request) string {
	if r.URL.RawQuery != "" {
		return operation + " " + r.URL.Path + "?"
	}
	return operation + " " + r.URL.Path
}
