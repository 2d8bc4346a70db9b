// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// exca-signal is the rendezvous server consoles and machines use to
// exchange session descriptions and ICE candidates. Peers connect over
// WebSocket at /ws and register a name; addressed messages are relayed
// to the named peer.
//
// Usage:
//
//	exca-signal [--listen ADDR] [--log-level LEVEL]
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MagicSakuraD/exca-teleop/lib/process"
	"github.com/MagicSakuraD/exca-teleop/lib/service"
	"github.com/MagicSakuraD/exca-teleop/lib/version"
	"github.com/MagicSakuraD/exca-teleop/signaling"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		listen      string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("exca-signal", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", ":8090", "TCP address to listen on")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		version.Print("exca-signal")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := signaling.NewHub(logger.With("component", "hub"))
	server, err := service.New(service.Config{
		Address:    listen,
		Handler:    newMux(hub),
		OnShutdown: hub.Close,
		Logger:     logger.With("component", "http"),
	})
	if err != nil {
		return err
	}

	logger.Info("signal server starting", "version", version.Info(), "listen", listen)
	return server.Serve(ctx)
}

// newMux routes /ws to the hub and /healthz to a peer listing.
func newMux(hub *signaling.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Version string   `json:"version"`
			Peers   []string `json:"peers"`
		}{version.Info(), hub.Peers()})
	})
	return mux
}
