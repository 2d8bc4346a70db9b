// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import "github.com/MagicSakuraD/exca-teleop/control"

// GearLatch commits gear changes on button edges. Holding a button
// commits once; pressing forward and reverse together forces Neutral.
type GearLatch struct {
	gear        control.Gear
	prevForward bool
	prevReverse bool
}

// Update feeds one tick of button state and returns the latched gear
// and whether this tick committed a change.
func (l *GearLatch) Update(forward, reverse bool) (control.Gear, bool) {
	forwardEdge := forward && !l.prevForward
	reverseEdge := reverse && !l.prevReverse
	l.prevForward, l.prevReverse = forward, reverse

	next := l.gear
	switch {
	case forward && reverse:
		next = control.GearNeutral
	case forwardEdge:
		next = control.GearDrive
	case reverseEdge:
		next = control.GearReverse
	}
	changed := next != l.gear
	l.gear = next
	return next, changed
}

// Gear returns the latched gear.
func (l *GearLatch) Gear() control.Gear { return l.gear }

// Toggle flips on each released→pressed edge.
type Toggle struct {
	on   bool
	prev bool
}

// Update feeds one tick of button state and returns the latched value.
func (t *Toggle) Update(pressed bool) bool {
	if pressed && !t.prev {
		t.on = !t.on
	}
	t.prev = pressed
	return t.on
}

// latches is the per-profile edge state the Sampler carries between
// ticks.
type latches struct {
	kind      Kind
	gear      GearLatch
	shifted   bool // the last gear update committed a change
	speed     Toggle
	light     Toggle
	power     Toggle
	hydraulic Toggle
}

func newLatches(kind Kind) *latches {
	l := &latches{kind: kind}
	// Hydraulics start locked; the first press unlocks them.
	l.hydraulic.on = true
	return l
}

func lightCode(on bool) uint8 {
	if on {
		return control.LightWork
	}
	return 0
}

// shift feeds the gear latch and remembers whether it committed.
func (l *latches) shift(forward, reverse bool) control.Gear {
	gear, changed := l.gear.Update(forward, reverse)
	l.shifted = changed
	return gear
}
