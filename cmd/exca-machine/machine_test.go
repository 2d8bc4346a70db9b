// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/testutil"
	"github.com/MagicSakuraD/exca-teleop/telemetry"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type telemetryChannel struct {
	open atomic.Bool
	sent chan []byte
}

func (c *telemetryChannel) Label() string { return transport.TelemetryLabel }
func (c *telemetryChannel) Open() bool    { return c.open.Load() }
func (c *telemetryChannel) Send(data []byte) error {
	c.sent <- data
	return nil
}

func (c *telemetryChannel) Channel(label string) (transport.Channel, bool) {
	if label != transport.TelemetryLabel {
		return nil, false
	}
	return c, true
}

func newTestMachine(clk clock.Clock, channel *telemetryChannel) *machine {
	return newMachine("ex-01", clk, slog.New(slog.NewJSONHandler(io.Discard, nil)), channel)
}

func command(t *testing.T, v control.Vector) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func TestMachineEchoesCommand(t *testing.T) {
	clk := clock.Fake(epoch)
	m := newTestMachine(clk, &telemetryChannel{})

	v := control.Neutral(control.WheelLoader, epoch)
	v.Gear = control.GearReverse
	v.SpeedMode = control.SpeedRabbit
	v.LightCode = control.LightWork
	v.Horn = true
	v.ParkingBrake = true
	v.PowerEnable = true
	m.receive(transport.ControlsLabel, command(t, v))

	first := m.step(epoch, publishInterval)
	second := m.step(epoch.Add(publishInterval), publishInterval)
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", first.Sequence, second.Sequence)
	}
	if second.Motion.Gear != control.GearReverse || second.Motion.SpeedMode != control.SpeedRabbit {
		t.Errorf("motion = %+v, want R rabbit", second.Motion)
	}
	if second.Aux.LightCode != control.LightWork || !second.Aux.HornStatus {
		t.Errorf("aux = %+v", second.Aux)
	}
	if !second.Safety.ParkingBrake || !second.Safety.HydraulicLock || !second.Safety.PowerEnable {
		t.Errorf("safety = %+v", second.Safety)
	}
	if second.Motion.Speed != 0 {
		t.Errorf("speed = %v with the parking brake set, want 0", second.Motion.Speed)
	}
}

func TestMachineDrivesAndStops(t *testing.T) {
	clk := clock.Fake(epoch)
	m := newTestMachine(clk, &telemetryChannel{})

	v := control.Neutral(control.WheelLoader, epoch)
	v.Gear = control.GearDrive
	v.Throttle = 1
	v.PowerEnable = true
	m.receive(transport.ControlsLabel, command(t, v))

	var frame telemetry.Frame
	for range 20 {
		clk.Advance(publishInterval)
		m.receive(transport.ControlsLabel, command(t, v))
		frame = m.step(clk.Now(), publishInterval)
	}
	if frame.Motion.Speed <= 0 || frame.Motion.Speed >= turtleTopSpeed {
		t.Errorf("speed after 1s = %v, want between 0 and %v", frame.Motion.Speed, turtleTopSpeed)
	}

	v.EmergencyStop = true
	m.receive(transport.ControlsLabel, command(t, v))
	frame = m.step(clk.Now(), publishInterval)
	if frame.Motion.Speed != 0 || !frame.Safety.EmergencyStop {
		t.Errorf("after emergency stop: speed %v, estop %v", frame.Motion.Speed, frame.Safety.EmergencyStop)
	}
}

func TestMachineNeutralWhenCommandsStop(t *testing.T) {
	clk := clock.Fake(epoch)
	m := newTestMachine(clk, &telemetryChannel{})

	v := control.Neutral(control.WheelLoader, epoch)
	v.Gear = control.GearDrive
	v.Horn = true
	m.receive(transport.ControlsLabel, command(t, v))

	frame := m.step(epoch.Add(commandTimeout+time.Millisecond), publishInterval)
	if frame.Motion.Gear != control.GearNeutral || frame.Aux.HornStatus {
		t.Errorf("frame after command timeout = %+v, want neutral without horn", frame)
	}
}

func TestMachineIgnoresOtherInput(t *testing.T) {
	m := newTestMachine(clock.Fake(epoch), &telemetryChannel{})
	m.receive(transport.TelemetryLabel, []byte(`{"gear":"D"}`))
	m.receive(transport.ControlsLabel, []byte(`{not json`))
	if frame := m.step(epoch, publishInterval); frame.Motion.Gear != control.GearNeutral {
		t.Errorf("gear = %v, want N", frame.Motion.Gear)
	}
}

func TestMachinePublishesWhileOpen(t *testing.T) {
	clk := clock.Fake(epoch)
	channel := &telemetryChannel{sent: make(chan []byte, 16)}
	m := newTestMachine(clk, channel)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.publish(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	clk.WaitForTimers(1)
	clk.Advance(publishInterval)
	testutil.RequireNoReceive(t, channel.sent, 50*time.Millisecond, "published on a closed channel")

	channel.open.Store(true)
	clk.Advance(publishInterval)
	data := testutil.RequireReceive(t, channel.sent, 5*time.Second, "no telemetry published")
	frame, err := telemetry.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.DeviceID != "ex-01" || frame.Sequence == 0 {
		t.Errorf("frame = %+v", frame)
	}
}
