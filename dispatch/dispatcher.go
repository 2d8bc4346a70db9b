// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

// Channels looks up data channels by label. The session manager
// satisfies it.
type Channels interface {
	Channel(label string) (transport.Channel, bool)
}

// Config configures a Dispatcher.
type Config struct {
	Channels  Channels
	Overrides *control.OverrideStore
	Logger    *slog.Logger

	// Failsafe, when set and returning true, forces emergency_stop on
	// the outgoing command.
	Failsafe func() bool
}

// Dispatcher is safe for concurrent use, though the sampler calls it
// from a single goroutine.
type Dispatcher struct {
	channels  Channels
	overrides *control.OverrideStore
	logger    *slog.Logger
	failsafe  func() bool

	sent    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
	last    atomic.Pointer[control.Vector]

	failsafeActive atomic.Bool
}

// Result is the outcome of one tick.
type Result int

const (
	Sent Result = iota
	// Skipped means the channel was not open.
	Skipped
	// Failed means the send itself returned an error.
	Failed
)

func New(config Config) (*Dispatcher, error) {
	if config.Channels == nil {
		return nil, errors.New("dispatch: Config.Channels is required")
	}
	if config.Overrides == nil {
		config.Overrides = &control.OverrideStore{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Dispatcher{
		channels:  config.Channels,
		overrides: config.Overrides,
		logger:    config.Logger,
		failsafe:  config.Failsafe,
	}, nil
}

// Dispatch merges device with the current override and sends it if
// the controls channel is open. It returns the merged vector whether
// or not it was sent.
func (d *Dispatcher) Dispatch(device control.Vector) (control.Vector, Result) {
	merged := control.Merge(device, d.overrides.Snapshot())
	if d.failsafe != nil {
		active := d.failsafe()
		if active {
			merged.EmergencyStop = true
		}
		if d.failsafeActive.Swap(active) != active {
			if active {
				d.logger.Warn("telemetry lost, commanding emergency stop")
			} else {
				d.logger.Info("telemetry back, releasing failsafe stop")
			}
		}
	}
	d.last.Store(&merged)

	channel, ok := d.channels.Channel(transport.ControlsLabel)
	if !ok || !channel.Open() {
		d.skipped.Add(1)
		return merged, Skipped
	}

	data, err := json.Marshal(merged)
	if err != nil {
		d.logger.Error("encoding control vector", "error", err)
		d.failed.Add(1)
		return merged, Failed
	}
	if err := channel.Send(data); err != nil {
		// The channel closed between the check and the send; the next
		// tick supersedes this one.
		d.logger.Debug("control send failed", "error", err)
		d.failed.Add(1)
		return merged, Failed
	}
	d.sent.Add(1)
	return merged, Sent
}

// Last returns the most recently merged vector.
func (d *Dispatcher) Last() (control.Vector, bool) {
	vector := d.last.Load()
	if vector == nil {
		return control.Vector{}, false
	}
	return *vector, true
}

// Counts reports how many ticks were sent, skipped, and failed.
func (d *Dispatcher) Counts() (sent, skipped, failed uint64) {
	return d.sent.Load(), d.skipped.Load(), d.failed.Load()
}
