// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/MagicSakuraD/exca-teleop/control"
)

// Frame is one machine status report.
type Frame struct {
	DeviceID string `json:"device_id"`
	// Timestamp is the machine's clock in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Sequence increases monotonically at the sender. It is diagnostic
	// only.
	Sequence uint64 `json:"sequence"`

	Safety Safety `json:"safety"`
	Motion Motion `json:"motion"`
	Aux    Aux    `json:"aux"`

	// Vitals are free-form gauges (engine temperature, hydraulic
	// pressure, fuel level, ...).
	Vitals map[string]float64 `json:"vitals,omitempty"`
}

type Safety struct {
	EmergencyStop bool `json:"emergency_stop"`
	ParkingBrake  bool `json:"parking_brake"`
	HydraulicLock bool `json:"hydraulic_lock"`
	PowerEnable   bool `json:"power_enable"`
	FaultCode     int  `json:"fault_code"`
}

type Motion struct {
	Gear      control.Gear      `json:"gear"`
	SpeedMode control.SpeedMode `json:"speed_mode"`
	// Speed is ground speed in km/h.
	Speed    float64 `json:"speed"`
	Steering float64 `json:"steering"`
}

type Aux struct {
	LightCode  uint8 `json:"light_code"`
	HornStatus bool  `json:"horn_status"`
}

// Decode parses one telemetry message.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decoding telemetry frame: %w", err)
	}
	return frame, nil
}

// clone copies the frame so callers cannot alias the held vitals map.
func (f Frame) clone() Frame {
	if f.Vitals != nil {
		vitals := make(map[string]float64, len(f.Vitals))
		for name, value := range f.Vitals {
			vitals[name] = value
		}
		f.Vitals = vitals
	}
	return f
}
