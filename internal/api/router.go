// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
)

// NewRouter wires the operator endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(requestMetrics)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/database/stats", h.DatabaseStats)

		r.Route("/backups", func(r chi.Router) {
			r.Post("/", h.CreateBackup)
			r.Get("/", h.ListBackups)
			r.Get("/{id}", h.GetBackup)
			r.Delete("/{id}", h.DeleteBackup)
			r.Post("/{id}/restore", h.RestoreBackup)
			r.Post("/{id}/verify", h.VerifyBackup)
			r.Post("/{id}/cancel", h.CancelBackup)
		})
		r.Post("/cleanup", h.Cleanup)

		r.Get("/restores", h.ListRestores)
		r.Post("/restores/{id}/cancel", h.CancelRestore)

		r.Get("/jobs", h.ListJobs)
		r.Put("/jobs/{name}", h.SetJob)
		r.Put("/config", h.UpdateConfig)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed on this endpoint")
	})

	return r
}

// requestLogger attaches a request-scoped logger and logs each request at debug.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.With().
			Str("component", "http").
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Logger()
		ctx := logging.ContextWithLogger(r.Context(), logger)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}

// requestMetrics records each request by its matched route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
