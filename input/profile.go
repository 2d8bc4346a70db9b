// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"strings"
	"time"

	"github.com/MagicSakuraD/exca-teleop/control"
)

// Kind names a controller topology.
type Kind int

const (
	KindNone Kind = iota
	KindDualJoystick
	KindWheel
	KindGamepad
)

func (k Kind) String() string {
	switch k {
	case KindDualJoystick:
		return "dual-joystick"
	case KindWheel:
		return "wheel+aux-joystick"
	case KindGamepad:
		return "xinput-gamepad"
	}
	return "none"
}

// Profile is a classified controller topology. The set of profiles is
// closed: DualJoystickPair, WheelAndAuxJoystick, and XInputGamepad.
type Profile interface {
	Kind() Kind
	DeviceType() control.DeviceType

	// vector converts one tick of pad state into a command.
	vector(state *latches, deadzone float64, at time.Time) control.Vector
}

var (
	wheelMarkers   = []string{"g29", "g920", "g923", "driving force", "wheel", "t300", "t150", "thrustmaster", "racing"}
	gamepadMarkers = []string{"xbox", "xinput", "x-box", "standard gamepad", "045e"}
)

func matches(id string, markers []string) bool {
	id = strings.ToLower(id)
	for _, marker := range markers {
		if strings.Contains(id, marker) {
			return true
		}
	}
	return false
}

// Classify picks the profile for the connected pads, or nil when no
// supported topology is present.
func Classify(pads []Pad) Profile {
	for i, pad := range pads {
		if !matches(pad.ID, wheelMarkers) {
			continue
		}
		profile := &WheelAndAuxJoystick{Wheel: pad, Pedals: pedalPolarityFor(pad.ID)}
		for j, other := range pads {
			if j != i {
				aux := other
				profile.Aux = &aux
				break
			}
		}
		return profile
	}
	for _, pad := range pads {
		if matches(pad.ID, gamepadMarkers) {
			return &XInputGamepad{Pad: pad}
		}
	}
	if len(pads) >= 2 {
		return &DualJoystickPair{Left: pads[0], Right: pads[1]}
	}
	return nil
}

// DualJoystickPair is two flight sticks driving an excavator. The left
// stick swings the house and moves the stick; the right moves boom and
// bucket. Each stick's axis 6 drives its track.
type DualJoystickPair struct {
	Left, Right Pad
}

const (
	dualSwingAxis  = 0
	dualStickAxis  = 1
	dualBucketAxis = 0
	dualBoomAxis   = 1
	dualTrackAxis  = 6

	dualHornButton  = 0 // left trigger
	dualLightButton = 1 // right thumb button
)

func (*DualJoystickPair) Kind() Kind                     { return KindDualJoystick }
func (*DualJoystickPair) DeviceType() control.DeviceType { return control.Excavator }

func (p *DualJoystickPair) vector(state *latches, deadzone float64, at time.Time) control.Vector {
	v := control.Neutral(control.Excavator, at)
	v.Swing = Deadzone(p.Left.Axis(dualSwingAxis), deadzone)
	v.Stick = Deadzone(p.Left.Axis(dualStickAxis), deadzone)
	v.LeftTrack = Deadzone(p.Left.Axis(dualTrackAxis), deadzone)
	v.Bucket = Deadzone(p.Right.Axis(dualBucketAxis), deadzone)
	v.Boom = Deadzone(p.Right.Axis(dualBoomAxis), deadzone)
	v.RightTrack = Deadzone(p.Right.Axis(dualTrackAxis), deadzone)
	v.Horn = p.Left.Pressed(dualHornButton)
	v.LightCode = lightCode(state.light.Update(p.Right.Pressed(dualLightButton)))
	v.HydraulicLock = state.hydraulic.on
	v.PowerEnable = state.power.on
	return v
}

// XInputGamepad is a single game pad in the standard mapping driving a
// wheel loader.
type XInputGamepad struct {
	Pad Pad
}

const (
	padSteerAxis  = 0 // left stick X
	padPedalAxis  = 1 // left stick Y: up throttles, down brakes
	padBucketAxis = 2 // right stick X
	padBoomAxis   = 3 // right stick Y: pull back raises

	padParkingButton   = 1  // B
	padRabbitButton    = 2  // X, held
	padHornButton      = 3  // Y
	padReverseButton   = 4  // LB
	padDriveButton     = 5  // RB
	padEstopButton     = 8  // Back
	padPowerButton     = 9  // Start
	padHornAltButton   = 10 // left stick press
	padHydraulicButton = 11 // right stick press
	padLightButton     = 12 // D-pad up
)

func (*XInputGamepad) Kind() Kind                     { return KindGamepad }
func (*XInputGamepad) DeviceType() control.DeviceType { return control.WheelLoader }

func (p *XInputGamepad) vector(state *latches, deadzone float64, at time.Time) control.Vector {
	pad := p.Pad
	v := control.Neutral(control.WheelLoader, at)
	v.Steering = Deadzone(pad.Axis(padSteerAxis), deadzone)
	pedal := Deadzone(pad.Axis(padPedalAxis), deadzone)
	v.Throttle = clamp(-pedal, 0, 1)
	v.Brake = clamp(pedal, 0, 1)
	v.Boom = Deadzone(pad.Axis(padBoomAxis), deadzone)
	v.Bucket = Deadzone(pad.Axis(padBucketAxis), deadzone)

	v.Gear = state.shift(pad.Pressed(padDriveButton), pad.Pressed(padReverseButton))
	if pad.Pressed(padRabbitButton) {
		v.SpeedMode = control.SpeedRabbit
	}
	v.Horn = pad.Pressed(padHornButton) || pad.Pressed(padHornAltButton)
	v.ParkingBrake = pad.Pressed(padParkingButton)
	v.EmergencyStop = pad.Pressed(padEstopButton)
	v.LightCode = lightCode(state.light.Update(pad.Pressed(padLightButton)))
	v.PowerEnable = state.power.Update(pad.Pressed(padPowerButton))
	v.HydraulicLock = state.hydraulic.Update(pad.Pressed(padHydraulicButton))
	return v
}

// PedalPolarity is where a wheel family's pedal axes rest.
type PedalPolarity int

const (
	// ReleasedHigh pedals read +1 released and -1 fully pressed
	// (Logitech G29/G920/G923).
	ReleasedHigh PedalPolarity = iota
	// ReleasedLow pedals read -1 released and +1 fully pressed
	// (Thrustmaster).
	ReleasedLow
)

// Amount renormalizes a native pedal reading to the 0..1 amount
// applied.
func (p PedalPolarity) Amount(raw float64) float64 {
	if p == ReleasedLow {
		return clamp((raw+1)/2, 0, 1)
	}
	return clamp((1-raw)/2, 0, 1)
}

func pedalPolarityFor(id string) PedalPolarity {
	if matches(id, []string{"thrustmaster", "t300", "t150"}) {
		return ReleasedLow
	}
	return ReleasedHigh
}

// WheelAndAuxJoystick is a racing wheel with pedals for travel plus an
// optional flight stick for boom and bucket, driving a wheel loader.
type WheelAndAuxJoystick struct {
	Wheel  Pad
	Aux    *Pad
	Pedals PedalPolarity
}

const (
	wheelSteerAxis    = 0
	wheelBrakeAxis    = 1
	wheelThrottleAxis = 2
	auxBucketAxis     = 0
	auxBoomAxis       = 1

	wheelParkingButton   = 2  // Circle
	wheelSpeedButton     = 3  // Triangle
	wheelDriveButton     = 4  // right paddle
	wheelReverseButton   = 5  // left paddle
	wheelPowerButton     = 8  // Share
	wheelEstopButton     = 9  // Options
	wheelHornButton      = 10 // R3
	wheelHydraulicButton = 11 // L3
)

func (*WheelAndAuxJoystick) Kind() Kind                     { return KindWheel }
func (*WheelAndAuxJoystick) DeviceType() control.DeviceType { return control.WheelLoader }

func (p *WheelAndAuxJoystick) vector(state *latches, deadzone float64, at time.Time) control.Vector {
	wheel := p.Wheel
	v := control.Neutral(control.WheelLoader, at)
	v.Steering = Deadzone(wheel.Axis(wheelSteerAxis), deadzone)
	// Pedals rest at full scale, so the dead-zone applies to the
	// renormalized amount rather than the raw reading.
	v.Throttle = Deadzone(p.Pedals.Amount(wheel.Axis(wheelThrottleAxis)), deadzone)
	v.Brake = Deadzone(p.Pedals.Amount(wheel.Axis(wheelBrakeAxis)), deadzone)
	if p.Aux != nil {
		v.Boom = Deadzone(p.Aux.Axis(auxBoomAxis), deadzone)
		v.Bucket = Deadzone(p.Aux.Axis(auxBucketAxis), deadzone)
	}

	v.Gear = state.shift(wheel.Pressed(wheelDriveButton), wheel.Pressed(wheelReverseButton))
	if state.speed.Update(wheel.Pressed(wheelSpeedButton)) {
		v.SpeedMode = control.SpeedRabbit
	}
	v.Horn = wheel.Pressed(wheelHornButton)
	v.ParkingBrake = wheel.Pressed(wheelParkingButton)
	v.EmergencyStop = wheel.Pressed(wheelEstopButton)
	v.PowerEnable = state.power.Update(wheel.Pressed(wheelPowerButton))
	v.HydraulicLock = state.hydraulic.Update(wheel.Pressed(wheelHydraulicButton))
	return v
}
