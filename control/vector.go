// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/json"
	"time"
)

// Vector is one complete machine command. Axes are in [-1, 1] except
// Throttle and Brake, which are amounts applied in [0, 1]. A Vector is
// a value: once produced for a tick it is never modified.
type Vector struct {
	DeviceType DeviceType
	Time       time.Time

	LeftTrack  float64
	RightTrack float64
	Swing      float64
	Boom       float64
	Stick      float64
	Bucket     float64
	Steering   float64
	Throttle   float64
	Brake      float64

	Gear      Gear
	SpeedMode SpeedMode

	Horn          bool
	EmergencyStop bool
	ParkingBrake  bool
	LightCode     uint8
	HydraulicLock bool
	PowerEnable   bool
}

// Neutral returns the command sent when no input device contributes:
// every axis centered, gear Neutral, turtle speed, hydraulics locked,
// power off.
func Neutral(deviceType DeviceType, at time.Time) Vector {
	return Vector{
		DeviceType:    deviceType,
		Time:          at,
		Gear:          GearNeutral,
		SpeedMode:     SpeedTurtle,
		HydraulicLock: true,
	}
}

// wireVector is the controls channel JSON schema.
type wireVector struct {
	DeviceType DeviceType `json:"device_type"`
	Timestamp  int64      `json:"timestamp"`

	LeftTrack  float64 `json:"left_track"`
	RightTrack float64 `json:"right_track"`
	Swing      float64 `json:"swing"`
	Boom       float64 `json:"boom"`
	Stick      float64 `json:"stick"`
	Bucket     float64 `json:"bucket"`
	Steering   float64 `json:"steering"`
	Throttle   float64 `json:"throttle"`
	Brake      float64 `json:"brake"`

	Gear      Gear      `json:"gear"`
	SpeedMode SpeedMode `json:"speed_mode"`

	Horn          bool  `json:"horn"`
	EmergencyStop bool  `json:"emergency_stop"`
	ParkingBrake  bool  `json:"parking_brake"`
	LightCode     uint8 `json:"light_code"`
	HydraulicLock bool  `json:"hydraulic_lock"`
	PowerEnable   bool  `json:"power_enable"`
}

func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireVector{
		DeviceType:    v.DeviceType,
		Timestamp:     v.Time.UnixMilli(),
		LeftTrack:     v.LeftTrack,
		RightTrack:    v.RightTrack,
		Swing:         v.Swing,
		Boom:          v.Boom,
		Stick:         v.Stick,
		Bucket:        v.Bucket,
		Steering:      v.Steering,
		Throttle:      v.Throttle,
		Brake:         v.Brake,
		Gear:          v.Gear,
		SpeedMode:     v.SpeedMode,
		Horn:          v.Horn,
		EmergencyStop: v.EmergencyStop,
		ParkingBrake:  v.ParkingBrake,
		LightCode:     v.LightCode,
		HydraulicLock: v.HydraulicLock,
		PowerEnable:   v.PowerEnable,
	})
}

func (v *Vector) UnmarshalJSON(data []byte) error {
	var wire wireVector
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*v = Vector{
		DeviceType:    wire.DeviceType,
		Time:          time.UnixMilli(wire.Timestamp),
		LeftTrack:     wire.LeftTrack,
		RightTrack:    wire.RightTrack,
		Swing:         wire.Swing,
		Boom:          wire.Boom,
		Stick:         wire.Stick,
		Bucket:        wire.Bucket,
		Steering:      wire.Steering,
		Throttle:      wire.Throttle,
		Brake:         wire.Brake,
		Gear:          wire.Gear,
		SpeedMode:     wire.SpeedMode,
		Horn:          wire.Horn,
		EmergencyStop: wire.EmergencyStop,
		ParkingBrake:  wire.ParkingBrake,
		LightCode:     wire.LightCode,
		HydraulicLock: wire.HydraulicLock,
		PowerEnable:   wire.PowerEnable,
	}
	return nil
}
