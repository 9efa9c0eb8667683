// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// OpsServerConfig controls the ops listener.
type OpsServerConfig struct {
	// Addr is host:port. Port 0 binds an ephemeral port.
	Addr string

	// ShutdownTimeout bounds the drain after cancellation. Default: 10s.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout, ReadTimeout, WriteTimeout and IdleTimeout are
	// applied to every http.Server the service builds. Zero takes defaults.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

func (c *OpsServerConfig) applyDefaults() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// OpsServer serves the health and metrics handler under suture. Each Serve
// binds its own listener and builds a fresh http.Server, so a restart after
// a listener failure starts clean.
type OpsServer struct {
	handler http.Handler
	config  OpsServerConfig
	logger  zerolog.Logger

	// onListen observes the bound address; set by tests.
	onListen func(net.Addr)
}

// NewOpsServer creates the ops listener service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewOpsServer(handler http.Handler, cfg OpsServerConfig, logger zerolog.Logger) *OpsServer {
	cfg.applyDefaults()
	return &OpsServer{
		handler: handler,
		config:  cfg,
		logger:  logger.With().Str("service", "ops-http").Logger(),
	}
}

// Serve implements suture.Service. A bind or serve failure is returned so
// suture restarts the service.
func (s *OpsServer) Serve(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("bind ops listener %s: %w", s.config.Addr, err)
	}
	if s.onListen != nil {
		s.onListen(ln.Addr())
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Ops listener started")

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops listener failed: %w", err)

	case <-ctx.Done():
		// ctx is already done; the drain needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Ops listener did not drain in time")
			_ = srv.Close()
		}
		<-served
		s.logger.Info().Msg("Ops listener stopped")
		return ctx.Err()
	}
}

// String returns the service name for logging.
func (s *OpsServer) String() string {
	return "ops-http"
}
