// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	defaultDrainTimeout = 5 * time.Second
	headerTimeout       = 10 * time.Second
	idleTimeout         = 60 * time.Second
)

// Server is a plain HTTP listener for the signaling endpoint. Upgraded
// WebSocket connections outlive ordinary requests, so the server sets
// no read or write timeout; OnShutdown is where the owner closes them.
type Server struct {
	cfg   Config
	bound chan struct{}
	addr  net.Addr
}

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address, e.g. ":8090". Port 0 picks a
	// free port; read it back with Addr.
	Address string

	Handler http.Handler

	// DrainTimeout bounds how long Serve waits for in-flight requests
	// once its context ends. Zero means 5s.
	DrainTimeout time.Duration

	// OnShutdown runs in its own goroutine when draining begins.
	OnShutdown func()

	Logger *slog.Logger
}

// New validates cfg and returns an unstarted server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Address == "":
		return nil, errors.New("service: listen address is required")
	case cfg.Handler == nil:
		return nil, errors.New("service: handler is required")
	case cfg.Logger == nil:
		return nil, errors.New("service: logger is required")
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Server{cfg: cfg, bound: make(chan struct{})}, nil
}

// Bound is closed once the listener is open.
func (s *Server) Bound() <-chan struct{} { return s.bound }

// Addr is the bound address. Valid after Bound is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve listens and serves until ctx ends, then drains. A listener
// failure is returned immediately; a clean drain returns nil.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("service: listen %s: %w", s.cfg.Address, err)
	}
	s.addr = listener.Addr()
	close(s.bound)

	httpServer := &http.Server{
		Handler:           s.cfg.Handler,
		ReadHeaderTimeout: headerTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.cfg.Logger.Handler(), slog.LevelDebug),
	}
	if s.cfg.OnShutdown != nil {
		httpServer.RegisterOnShutdown(s.cfg.OnShutdown)
	}

	failed := make(chan error, 1)
	go func() {
		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()
	s.cfg.Logger.Info("listening", "address", s.addr.String())

	select {
	case err := <-failed:
		return fmt.Errorf("service: serve: %w", err)
	case <-ctx.Done():
	}

	s.cfg.Logger.Info("draining", "timeout", s.cfg.DrainTimeout)
	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		httpServer.Close()
		return fmt.Errorf("service: drain: %w", err)
	}
	s.cfg.Logger.Info("stopped")
	return nil
}
