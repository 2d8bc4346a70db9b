// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"errors"
	"sync"
)

// ErrNoDevice reports that a source has no working connection to its
// controllers.
var ErrNoDevice = errors.New("input: controller source unavailable")

// Pad is the state of one connected controller.
type Pad struct {
	// ID is the vendor-supplied identifier string.
	ID      string    `json:"id"`
	Axes    []float64 `json:"axes"`
	Buttons []bool    `json:"buttons"`
}

// Axis returns axis i, or 0 if the pad has no such axis.
func (p Pad) Axis(i int) float64 {
	if i < 0 || i >= len(p.Axes) {
		return 0
	}
	return p.Axes[i]
}

// Pressed reports whether button i is held. Missing buttons read as
// released.
func (p Pad) Pressed(i int) bool {
	return i >= 0 && i < len(p.Buttons) && p.Buttons[i]
}

func (p Pad) clone() Pad {
	return Pad{
		ID:      p.ID,
		Axes:    append([]float64(nil), p.Axes...),
		Buttons: append([]bool(nil), p.Buttons...),
	}
}

// Source enumerates the currently connected controllers.
type Source interface {
	Poll() ([]Pad, error)
}

// StaticSource is a Source whose pads are set by the caller. The zero
// value has no pads. It backs headless operation and tests.
type StaticSource struct {
	mu   sync.Mutex
	pads []Pad
	err  error
}

// Set replaces the connected pads.
func (s *StaticSource) Set(pads ...Pad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pads = clonePads(pads)
	s.err = nil
}

// Fail makes Poll return err until the next Set.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) Poll() ([]Pad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return clonePads(s.pads), nil
}

func clonePads(pads []Pad) []Pad {
	if pads == nil {
		return nil
	}
	result := make([]Pad, len(pads))
	for i, pad := range pads {
		result[i] = pad.clone()
	}
	return result
}

// FuncSource adapts a function to Source.
type FuncSource func() ([]Pad, error)

func (f FuncSource) Poll() ([]Pad, error) { return f() }
