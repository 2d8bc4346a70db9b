// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// exca-console is the operator station. It connects to a machine
// through the signaling server, streams control vectors from the
// attached input devices, and shows connection state, link quality,
// telemetry, and the operator log.
//
// On a terminal it runs a full-screen UI with keyboard overrides;
// with --headless (or when stdin is not a terminal) it connects at
// start and logs to stderr until interrupted.
//
// Usage:
//
//	exca-console [--config FILE] [--headless] [--log-level LEVEL] [--log-format text|json]
//	exca-console --list-ports
//	exca-console --dump-journal FILE
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/MagicSakuraD/exca-teleop/console"
	"github.com/MagicSakuraD/exca-teleop/input"
	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
	"github.com/MagicSakuraD/exca-teleop/lib/process"
	"github.com/MagicSakuraD/exca-teleop/lib/version"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	headless    bool
	logLevel    string
	logFormat   string
	listPorts   bool
	dumpJournal string
	showVersion bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("exca-console", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "configuration file (default $"+config.EnvVar+", else built-in defaults)")
	flagSet.BoolVar(&opts.headless, "headless", false, "run without the terminal UI")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "minimum level written to stderr: debug, info, warn, error")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "stderr log format: text or json")
	flagSet.BoolVar(&opts.listPorts, "list-ports", false, "list serial ports for the controller bridge and exit")
	flagSet.StringVar(&opts.dumpJournal, "dump-journal", "", "print a journal file and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	switch {
	case opts.showVersion:
		version.Print("exca-console")
		return nil
	case opts.listPorts:
		return listPorts()
	case opts.dumpJournal != "":
		return dumpJournal(os.Stdout, opts.dumpJournal)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	interactive := !opts.headless && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	sessionID := uuid.NewString()
	book := logbook.New(0)
	var processHandler slog.Handler
	if !interactive {
		// The UI owns the screen; in interactive mode records only
		// reach the book.
		processHandler = newStderrHandler(opts.logFormat, level).
			WithAttrs([]slog.Attr{slog.String("console_session", sessionID)})
	}
	logger := slog.New(logbook.NewHandler(processHandler, book))

	if cfg.Log.Journal != "" {
		journal, err := logbook.CreateJournal(cfg.Log.Journal, logbook.JournalHeader{
			Session: sessionID,
			Started: time.Now(),
		})
		if err != nil {
			return err
		}
		defer journal.Close()
		book.Attach(journal)
	}

	source, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	var microphone transport.Microphone
	if cfg.MicrophoneEnabled {
		microphone = transport.NewSampleMicrophone("console-" + sessionID)
	}

	sink := newMediaSink(logger)
	station, err := console.New(console.Options{
		Config:     cfg,
		Logger:     logger,
		Book:       book,
		Source:     source,
		Microphone: microphone,
		OnTrack:    sink.Play,
	})
	if err != nil {
		return err
	}
	sink.speakerMuted = station.SpeakerMuted

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("console starting",
		"version", version.Info(),
		"identity", cfg.LocalIdentity,
		"target", cfg.TargetPeer,
		"endpoint", cfg.SignalingEndpoint,
	)

	runErr := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { runErr <- station.Run(runCtx) }()
	station.Connect()

	if interactive {
		if err := runUI(ctx, station); err != nil {
			cancel()
			<-runErr
			return err
		}
		cancel()
	}
	err = <-runErr
	if sinkErr := book.SinkErr(); sinkErr != nil {
		fmt.Fprintf(os.Stderr, "warning: journal incomplete: %v\n", sinkErr)
	}
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("--log-level: %w", err)
	}
	return level, nil
}

func newStderrHandler(format string, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.NewTextHandler(os.Stderr, options)
}

// openSource returns the configured controller source and its closer.
func openSource(cfg *config.Config, logger *slog.Logger) (input.Source, func(), error) {
	switch cfg.Input.Source {
	case "serial":
		if cfg.Input.SerialPort == "" {
			return nil, nil, errors.New("input.source is serial but input.serial_port is empty (try --list-ports)")
		}
		source, err := input.OpenSerial(cfg.Input.SerialPort, cfg.Input.SerialBaud, clock.Real(), logger.With("component", "input"))
		if err != nil {
			return nil, nil, err
		}
		return source, func() { source.Close() }, nil
	default:
		logger.Warn("no input device configured, sending neutral commands")
		return &input.StaticSource{}, func() {}, nil
	}
}

func listPorts() error {
	ports, err := input.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Println(port)
	}
	return nil
}
