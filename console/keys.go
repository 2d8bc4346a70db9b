// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"strings"

	"github.com/MagicSakuraD/exca-teleop/control"
)

// HandleKey applies a keyboard shortcut and reports whether key is
// bound. Keys are compared case-insensitively; the space bar may be
// given as " " or "space". Quitting is left to the caller.
func (c *Console) HandleKey(key string) bool {
	switch strings.ToLower(key) {
	case " ", "space":
		c.ToggleEmergencyStop()
	case "h":
		c.PulseHorn()
	case "l":
		c.ToggleWorkLight()
	case "r":
		c.ToggleSpeedMode()
	case "d":
		c.SetGear(control.GearDrive)
	case "b":
		c.SetGear(control.GearReverse)
	case "n":
		c.ClearGear()
	case "m":
		c.ToggleMute()
	case "k":
		c.ToggleSpeaker()
	case "c":
		c.ToggleConnection()
	default:
		return false
	}
	return true
}

// ToggleEmergencyStop flips the UI emergency stop.
func (c *Console) ToggleEmergencyStop() {
	var engaged bool
	c.overrides.Update(func(o *control.Override) {
		engaged = o.EmergencyStop == nil || !*o.EmergencyStop
		o.EmergencyStop = control.Bool(engaged)
	})
	if engaged {
		c.logger.Warn("emergency stop engaged by operator")
	} else {
		c.logger.Info("emergency stop released by operator")
	}
}

// PulseHorn asserts the horn for HornPulse. A press during a pulse
// extends it.
func (c *Console) PulseHorn() {
	c.hornMu.Lock()
	defer c.hornMu.Unlock()
	if c.hornTimer != nil {
		c.hornTimer.Stop()
	}
	c.overrides.Patch(control.Override{Horn: control.Bool(true)})
	c.hornTimer = c.clock.AfterFunc(HornPulse, func() {
		c.overrides.Update(func(o *control.Override) { o.Horn = nil })
	})
}

// ToggleWorkLight flips the work light bit of the UI light code.
func (c *Console) ToggleWorkLight() {
	var code uint8
	c.overrides.Update(func(o *control.Override) {
		if o.LightCode != nil {
			code = *o.LightCode
		}
		code ^= control.LightWork
		o.LightCode = control.Lights(code)
	})
	c.logger.Info("work light toggled", "on", code&control.LightWork != 0)
}

// ToggleSpeedMode switches the UI speed mode between turtle and
// rabbit. Turtle is the default, so toggling back to it hands the
// field back to the device.
func (c *Console) ToggleSpeedMode() {
	var mode control.SpeedMode
	c.overrides.Update(func(o *control.Override) {
		if o.SpeedMode != nil {
			mode = *o.SpeedMode
		}
		mode = mode.Toggle()
		o.SpeedMode = control.SpeedPtr(mode)
	})
	c.logger.Info("speed mode set", "mode", mode.String())
}

// SetGear sets the UI gear opinion.
func (c *Console) SetGear(gear control.Gear) {
	if gear == control.GearNeutral {
		c.ClearGear()
		return
	}
	c.overrides.Patch(control.Override{Gear: control.GearPtr(gear)})
	c.logger.Info("gear set", "gear", gear.String())
}

// ClearGear withdraws the UI gear opinion so the device decides.
func (c *Console) ClearGear() {
	c.overrides.Update(func(o *control.Override) { o.Gear = nil })
	c.logger.Info("gear released to device")
}
