// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package control

// Strategy is how one command field combines device and UI values.
type Strategy int

const (
	// DeviceWins: the device value is used; the UI has no say.
	DeviceWins Strategy = iota
	// LogicalOr: asserted if either source asserts it.
	LogicalOr
	// BitwiseOr: the union of both bitmasks.
	BitwiseOr
	// UIPriority: a present, non-default UI value replaces the device
	// value; otherwise the device value is used.
	UIPriority
	// DeviceOnly: the field has no UI representation at all.
	DeviceOnly
)

func (s Strategy) String() string {
	switch s {
	case DeviceWins:
		return "device-wins"
	case LogicalOr:
		return "or"
	case BitwiseOr:
		return "bitwise-or"
	case UIPriority:
		return "ui-priority-else-device"
	case DeviceOnly:
		return "device-only"
	}
	return "unknown"
}

// Rule binds a wire field to its merge strategy.
type Rule struct {
	Field    string
	Strategy Strategy

	// apply folds the UI value into merged, which starts as the
	// device vector. Nil for strategies that keep the device value.
	apply func(merged *Vector, ui Override)
}

func orBool(field *bool, ui *bool) {
	if ui != nil && *ui {
		*field = true
	}
}

var policy = []Rule{
	{Field: "left_track", Strategy: DeviceWins},
	{Field: "right_track", Strategy: DeviceWins},
	{Field: "swing", Strategy: DeviceWins},
	{Field: "boom", Strategy: DeviceWins},
	{Field: "stick", Strategy: DeviceWins},
	{Field: "bucket", Strategy: DeviceWins},
	{Field: "steering", Strategy: DeviceWins},
	{Field: "throttle", Strategy: DeviceWins},
	{Field: "brake", Strategy: DeviceWins},
	{Field: "emergency_stop", Strategy: LogicalOr, apply: func(m *Vector, ui Override) {
		orBool(&m.EmergencyStop, ui.EmergencyStop)
	}},
	{Field: "parking_brake", Strategy: LogicalOr, apply: func(m *Vector, ui Override) {
		orBool(&m.ParkingBrake, ui.ParkingBrake)
	}},
	{Field: "horn", Strategy: LogicalOr, apply: func(m *Vector, ui Override) {
		orBool(&m.Horn, ui.Horn)
	}},
	{Field: "light_code", Strategy: BitwiseOr, apply: func(m *Vector, ui Override) {
		if ui.LightCode != nil {
			m.LightCode |= *ui.LightCode
		}
	}},
	{Field: "gear", Strategy: UIPriority, apply: func(m *Vector, ui Override) {
		if ui.Gear != nil && *ui.Gear != GearNeutral {
			m.Gear = *ui.Gear
		}
	}},
	{Field: "speed_mode", Strategy: UIPriority, apply: func(m *Vector, ui Override) {
		if ui.SpeedMode != nil && *ui.SpeedMode != SpeedTurtle {
			m.SpeedMode = *ui.SpeedMode
		}
	}},
	{Field: "hydraulic_lock", Strategy: DeviceOnly},
	{Field: "power_enable", Strategy: DeviceOnly},
}

// Policy returns the merge table, one rule per command field.
func Policy() []Rule {
	rules := make([]Rule, len(policy))
	copy(rules, policy)
	return rules
}

// Merge combines a device vector with the UI override according to
// Policy. The device vector is not modified.
func Merge(device Vector, ui Override) Vector {
	merged := device
	for _, rule := range policy {
		if rule.apply != nil {
			rule.apply(&merged, ui)
		}
	}
	return merged
}
