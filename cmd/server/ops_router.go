// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/marquee/internal/logging"
)

// readinessTimeout bounds the database ping behind /readyz.
const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerState reports a circuit breaker's current state.
type BreakerState interface {
	State() string
}

type opsHandler struct {
	db        Pinger
	breaker   BreakerState
	startTime time.Time
}

// newOpsRouter serves liveness, readiness and Prometheus metrics. breaker
// may be nil.
func newOpsRouter(db Pinger, breaker BreakerState) http.Handler {
	h := &opsHandler{db: db, breaker: breaker, startTime: time.Now()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.live)
	r.Get("/readyz", h.ready)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *opsHandler) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// ready is 200 only while the database answers a ping. The media server
// breaker state is informational.
func (h *opsHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	dbErr := h.db.Ping(ctx)
	body := map[string]any{
		"database_connected": dbErr == nil,
		"uptime":             time.Since(h.startTime).Seconds(),
	}
	if h.breaker != nil {
		body["media_server_breaker"] = h.breaker.State()
	}

	status := http.StatusOK
	body["status"] = "ready"
	if dbErr != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "not_ready"
		logging.Warn().Err(dbErr).Msg("Readiness check failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode ops response")
	}
}
