// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/dispatch"
	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/telemetry"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

const (
	publishInterval = 50 * time.Millisecond // 20 Hz

	turtleTopSpeed = 8.0  // km/h
	rabbitTopSpeed = 20.0 // km/h

	// commandTimeout stops the simulated machine when commands dry up.
	commandTimeout = 500 * time.Millisecond
)

// machine simulates the remote side: it applies received commands to
// a trivial drive model and reports its state as telemetry.
type machine struct {
	deviceID string
	clock    clock.Clock
	logger   *slog.Logger
	channels dispatch.Channels

	mu          sync.Mutex
	command     control.Vector
	haveCommand bool
	lastCommand time.Time
	speed       float64
	sequence    uint64
}

func newMachine(deviceID string, clk clock.Clock, logger *slog.Logger, channels dispatch.Channels) *machine {
	return &machine{
		deviceID: deviceID,
		clock:    clk,
		logger:   logger,
		channels: channels,
		command:  control.Neutral(control.Excavator, time.Time{}),
	}
}

// receive is the session's data channel callback.
func (m *machine) receive(label string, data []byte) {
	if label != transport.ControlsLabel {
		return
	}
	var command control.Vector
	if err := json.Unmarshal(data, &command); err != nil {
		m.logger.Debug("dropping malformed command", "error", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if command.EmergencyStop && !m.command.EmergencyStop {
		m.logger.Warn("emergency stop commanded")
	}
	m.command = command
	m.haveCommand = true
	m.lastCommand = m.clock.Now()
}

// reset forgets the previous controller's command.
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.command = control.Neutral(control.Excavator, time.Time{})
	m.haveCommand = false
	m.speed = 0
}

// step advances the drive model by dt and returns the next frame.
func (m *machine) step(now time.Time, dt time.Duration) telemetry.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	command := m.command
	if m.haveCommand && now.Sub(m.lastCommand) > commandTimeout {
		command = control.Neutral(command.DeviceType, now)
	}

	target := 0.0
	if !command.EmergencyStop && !command.ParkingBrake && command.PowerEnable {
		top := turtleTopSpeed
		if command.SpeedMode == control.SpeedRabbit {
			top = rabbitTopSpeed
		}
		switch command.Gear {
		case control.GearDrive:
			target = top * command.Throttle
		case control.GearReverse:
			target = -top * command.Throttle
		}
		target *= 1 - command.Brake
	}
	// First-order lag with a one-second time constant; an emergency
	// stop halts at once.
	if command.EmergencyStop {
		m.speed = 0
	} else {
		alpha := 1 - math.Exp(-dt.Seconds())
		m.speed += (target - m.speed) * alpha
	}

	m.sequence++
	return telemetry.Frame{
		DeviceID:  m.deviceID,
		Timestamp: now.UnixMilli(),
		Sequence:  m.sequence,
		Safety: telemetry.Safety{
			EmergencyStop: command.EmergencyStop,
			ParkingBrake:  command.ParkingBrake,
			HydraulicLock: command.HydraulicLock,
			PowerEnable:   command.PowerEnable,
		},
		Motion: telemetry.Motion{
			Gear:      command.Gear,
			SpeedMode: command.SpeedMode,
			Speed:     math.Round(m.speed*10) / 10,
			Steering:  command.Steering,
		},
		Aux: telemetry.Aux{
			LightCode:  command.LightCode,
			HornStatus: command.Horn,
		},
		Vitals: map[string]float64{
			"hydraulic_pressure_bar": hydraulicPressure(command),
		},
	}
}

// hydraulicPressure is a stand-in gauge: idle pressure plus demand
// from the implement axes, zero while locked.
func hydraulicPressure(command control.Vector) float64 {
	if command.HydraulicLock || !command.PowerEnable {
		return 0
	}
	demand := math.Abs(command.Boom) + math.Abs(command.Stick) + math.Abs(command.Bucket) + math.Abs(command.Swing)
	return math.Round(40 + 40*math.Min(demand, 4))
}

// publish sends one frame per publishInterval on the telemetry channel
// while it is open.
func (m *machine) publish(ctx context.Context) error {
	ticker := m.clock.NewTicker(publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			frame := m.step(now, publishInterval)
			channel, ok := m.channels.Channel(transport.TelemetryLabel)
			if !ok || !channel.Open() {
				continue
			}
			data, err := json.Marshal(frame)
			if err != nil {
				m.logger.Error("encoding telemetry", "error", err)
				continue
			}
			if err := channel.Send(data); err != nil {
				m.logger.Debug("telemetry send failed", "error", err)
			}
		}
	}
}
