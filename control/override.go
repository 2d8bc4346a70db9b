// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "sync"

// Override is the UI's opinion about a subset of command fields. A nil
// field means "no opinion", which is different from false or zero.
// Continuous axes, hydraulic lock, and power enable have no field
// here: the UI cannot drive them.
type Override struct {
	Gear          *Gear
	SpeedMode     *SpeedMode
	Horn          *bool
	EmergencyStop *bool
	ParkingBrake  *bool
	LightCode     *uint8
}

// Patch copies every non-nil field of patch into o.
func (o *Override) Patch(patch Override) {
	if patch.Gear != nil {
		o.Gear = ptr(*patch.Gear)
	}
	if patch.SpeedMode != nil {
		o.SpeedMode = ptr(*patch.SpeedMode)
	}
	if patch.Horn != nil {
		o.Horn = ptr(*patch.Horn)
	}
	if patch.EmergencyStop != nil {
		o.EmergencyStop = ptr(*patch.EmergencyStop)
	}
	if patch.ParkingBrake != nil {
		o.ParkingBrake = ptr(*patch.ParkingBrake)
	}
	if patch.LightCode != nil {
		o.LightCode = ptr(*patch.LightCode)
	}
}

// clone returns a copy sharing no pointers with o.
func (o Override) clone() Override {
	var copied Override
	copied.Patch(o)
	return copied
}

// Bool returns a pointer to b, for building Override literals.
func Bool(b bool) *bool { return &b }

// GearPtr returns a pointer to g.
func GearPtr(g Gear) *Gear { return &g }

// SpeedPtr returns a pointer to s.
func SpeedPtr(s SpeedMode) *SpeedMode { return &s }

// Lights returns a pointer to code.
func Lights(code uint8) *uint8 { return &code }

func ptr[T any](v T) *T { return &v }

// OverrideStore holds the current Override for concurrent writers (the
// UI) and readers (the dispatcher).
type OverrideStore struct {
	mu      sync.Mutex
	current Override
}

// Patch merges patch into the stored override.
func (s *OverrideStore) Patch(patch Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Patch(patch)
}

// Update applies fn to the stored override under the store's lock,
// for read-modify-write changes such as toggles. fn may set fields to
// nil to withdraw an opinion.
func (s *OverrideStore) Update(fn func(*Override)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
}

// Snapshot returns an independent copy of the stored override.
func (s *OverrideStore) Snapshot() Override {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Reset withdraws every opinion.
func (s *OverrideStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Override{}
}
