// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gear is the transmission direction.
type Gear uint8

const (
	GearNeutral Gear = iota
	GearDrive
	GearReverse
)

func (g Gear) String() string {
	switch g {
	case GearDrive:
		return "D"
	case GearReverse:
		return "R"
	default:
		return "N"
	}
}

func (g Gear) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText accepts "N", "D", "R" and their spelled-out forms.
// "P" (park) is reported by some machines and reads as Neutral.
func (g *Gear) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "N", "NEUTRAL", "P", "PARK":
		*g = GearNeutral
	case "D", "DRIVE", "F", "FORWARD":
		*g = GearDrive
	case "R", "REVERSE":
		*g = GearReverse
	default:
		return fmt.Errorf("unknown gear %q", text)
	}
	return nil
}

// UnmarshalJSON additionally accepts the numeric encoding machines use
// in telemetry: 1 = Drive, 2 = Neutral, 3 = Reverse.
func (g *Gear) UnmarshalJSON(data []byte) error {
	var number int
	if err := json.Unmarshal(data, &number); err == nil {
		switch number {
		case 1:
			*g = GearDrive
		case 2, 0:
			*g = GearNeutral
		case 3:
			*g = GearReverse
		default:
			return fmt.Errorf("unknown gear code %d", number)
		}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("gear must be a string or number: %w", err)
	}
	return g.UnmarshalText([]byte(text))
}

// SpeedMode is the travel speed range.
type SpeedMode uint8

const (
	SpeedTurtle SpeedMode = iota
	SpeedRabbit
)

func (s SpeedMode) String() string {
	if s == SpeedRabbit {
		return "rabbit"
	}
	return "turtle"
}

func (s SpeedMode) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts "turtle"/"rabbit" and the single-letter "T"/"R".
func (s *SpeedMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "turtle", "t", "low":
		*s = SpeedTurtle
	case "rabbit", "r", "high":
		*s = SpeedRabbit
	default:
		return fmt.Errorf("unknown speed mode %q", text)
	}
	return nil
}

// Toggle returns the other speed mode.
func (s SpeedMode) Toggle() SpeedMode {
	if s == SpeedRabbit {
		return SpeedTurtle
	}
	return SpeedRabbit
}

// DeviceType tags which machine family a Vector is meant for.
type DeviceType string

const (
	Excavator   DeviceType = "excavator"
	WheelLoader DeviceType = "wheel_loader"
)

// LightWork is the work light bit in a light code.
const LightWork uint8 = 0x10
