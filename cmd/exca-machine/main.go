// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// exca-machine plays the machine side of a teleoperation session for
// bench testing without hardware. It registers with the signaling
// server, answers the console's offers, applies received control
// vectors to a simple drive model, and publishes telemetry at 20 Hz.
//
// Usage:
//
//	exca-machine [--config FILE] [--identity NAME] [--endpoint URL]
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/lib/process"
	"github.com/MagicSakuraD/exca-teleop/lib/version"
	"github.com/MagicSakuraD/exca-teleop/session"
	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		identity    string
		endpoint    string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("exca-machine", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&identity, "identity", "excavator", "name to register under")
	flagSet.StringVar(&endpoint, "endpoint", "", "signaling server URL (overrides the configuration)")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		version.Print("exca-machine")
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.Role = config.RoleMachine
	cfg.LocalIdentity = identity
	if endpoint != "" {
		cfg.SignalingEndpoint = endpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	var sim *machine
	manager, err := session.New(session.Config{
		Role:     config.RoleMachine,
		Identity: cfg.LocalIdentity,
		Endpoint: cfg.SignalingEndpoint,
		Dialer:   signaling.WebSocketDialer{},
		NewLink: transport.NewFactory(transport.LinkConfig{
			Role:       config.RoleMachine,
			ICEServers: transport.ICEServers(cfg.ICEServers),
			Logger:     logger.With("component", "transport"),
		}),
		Clock:  clk,
		Logger: logger.With("component", "session"),
		Backoff: session.Backoff{
			Base:        cfg.Session.ReconnectBase.Duration,
			Factor:      cfg.Session.ReconnectFactor,
			MaxDelay:    cfg.Session.ReconnectMaxDelay.Duration,
			MaxAttempts: cfg.Session.ReconnectMaxAttempts,
		},
		HeartbeatInterval: cfg.Session.HeartbeatInterval.Duration,
		StatsInterval:     cfg.Session.StatsInterval.Duration,
		OnMessage:         func(label string, data []byte) { sim.receive(label, data) },
		OnReset:           func() { sim.reset() },
	})
	if err != nil {
		return err
	}
	sim = newMachine(cfg.LocalIdentity, clk, logger.With("component", "machine"), manager)

	logger.Info("machine starting", "version", version.Info(), "identity", cfg.LocalIdentity, "endpoint", cfg.SignalingEndpoint)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sim.publish(ctx)
	}()
	manager.Enable()
	err = manager.Run(ctx)
	wg.Wait()
	return err
}
