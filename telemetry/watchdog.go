// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MagicSakuraD/exca-teleop/lib/clock"
)

const (
	DefaultInterval   = 500 * time.Millisecond
	DefaultStaleAfter = 500 * time.Millisecond

	// sequenceLogEvery spaces the debug log of received frames.
	sequenceLogEvery = 100
)

// WatchdogConfig configures a Watchdog.
type WatchdogConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	Interval   time.Duration
	StaleAfter time.Duration

	// Connected reports whether the session is connected. Telemetry is
	// only stale while connected. Nil means always connected.
	Connected func() bool
}

// Watchdog holds the latest frame and its freshness.
type Watchdog struct {
	clock      clock.Clock
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	connected  func() bool

	mu          sync.Mutex
	frame       *Frame
	lastArrival time.Time
	stale       bool
}

// Snapshot is the telemetry exposed to consumers.
type Snapshot struct {
	Frame Frame
	// Present is false when no frame has arrived since the last reset.
	Present bool
	Stale   bool
	// Age is the time since the last frame (or reset) at the moment
	// of the snapshot.
	Age time.Duration
}

// NewWatchdog returns a Watchdog with no frame.
func NewWatchdog(config WatchdogConfig) *Watchdog {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	return &Watchdog{
		clock:       config.Clock,
		logger:      config.Logger,
		interval:    config.Interval,
		staleAfter:  config.StaleAfter,
		connected:   config.Connected,
		lastArrival: config.Clock.Now(),
	}
}

// Receive decodes data and replaces the held frame unconditionally.
// A frame that fails to decode is dropped and the held frame kept.
func (w *Watchdog) Receive(data []byte) error {
	frame, err := Decode(data)
	if err != nil {
		w.logger.Debug("dropping telemetry", "error", err)
		return err
	}
	now := w.clock.Now()

	w.mu.Lock()
	w.frame = &frame
	w.lastArrival = now
	w.mu.Unlock()

	if frame.Sequence%sequenceLogEvery == 0 {
		w.logger.Debug("telemetry received", "sequence", frame.Sequence, "device", frame.DeviceID)
	}
	return nil
}

// Reset drops the held frame and restarts the freshness clock. The
// session calls it at teardown and when a connection is established.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = nil
	w.lastArrival = w.clock.Now()
	w.stale = false
}

// Run checks freshness every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// A tick that waited in the channel is judged at the
			// current time, not at its own.
			w.Check(w.clock.Now())
		}
	}
}

// Check evaluates staleness at now and returns the result.
func (w *Watchdog) Check(now time.Time) bool {
	connected := w.connected == nil || w.connected()

	w.mu.Lock()
	since := now.Sub(w.lastArrival)
	stale := connected && since > w.staleAfter
	changed := stale != w.stale
	w.stale = stale
	w.mu.Unlock()

	if changed {
		if stale {
			w.logger.Warn("telemetry stale", "since_last_frame", since)
		} else {
			w.logger.Info("telemetry restored")
		}
	}
	return stale
}

// Stale reports the result of the most recent check.
func (w *Watchdog) Stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale
}

// Latest returns the held frame, if any.
func (w *Watchdog) Latest() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frame == nil {
		return Frame{}, false
	}
	return w.frame.clone(), true
}

func (w *Watchdog) Snapshot() Snapshot {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := Snapshot{Stale: w.stale, Age: now.Sub(w.lastArrival)}
	if w.frame != nil {
		snapshot.Frame = w.frame.clone()
		snapshot.Present = true
	}
	return snapshot
}
