// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService keeps the health, status and metrics endpoint up.
type HTTPServerService struct {
	srv   HTTPServer
	grace time.Duration
}

// NewHTTPServerService wraps srv. Once the Serve context ends, in-flight
// requests get grace to finish; zero or less means 10s.
func NewHTTPServerService(srv HTTPServer, grace time.Duration) *HTTPServerService {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &HTTPServerService{srv: srv, grace: grace}
}

// Serve implements suture.Service. A listener that dies on its own is an
// error, which makes the supervisor restart it.
func (s *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.srv.ListenAndServe() }()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return errors.New("http listener stopped unexpectedly")
		}
		return fmt.Errorf("http listener: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-done
	return ctx.Err()
}

func (s *HTTPServerService) String() string { return "http-server" }
