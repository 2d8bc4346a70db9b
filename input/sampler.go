// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/lib/clock"
)

const (
	// DefaultSampleInterval is the minimum spacing between executed
	// samples (about 30 Hz).
	DefaultSampleInterval = 33 * time.Millisecond

	// DefaultFrameInterval is the scheduler tick, a 60 Hz display
	// frame. Every second tick samples.
	DefaultFrameInterval = time.Second / 60
)

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	Source Source
	Clock  clock.Clock
	Logger *slog.Logger

	// Deadzone defaults to DefaultDeadzone when zero or negative.
	Deadzone float64

	SampleInterval time.Duration
	FrameInterval  time.Duration

	// DeviceType, when set, replaces the profile's device_type tag.
	DeviceType control.DeviceType

	// Emit receives every produced vector, on the sampling goroutine.
	Emit func(control.Vector)
}

// Sampler produces exactly one control vector per executed tick.
type Sampler struct {
	source         Source
	clock          clock.Clock
	logger         *slog.Logger
	deadzone       float64
	sampleInterval time.Duration
	frameInterval  time.Duration
	deviceType     control.DeviceType
	emit           func(control.Vector)

	// tickMu serializes Tick; the fields below it are only touched
	// while it is held.
	tickMu     sync.Mutex
	lastSample time.Time
	state      *latches

	latest atomic.Pointer[control.Vector]
	ready  atomic.Bool
	kind   atomic.Int32
}

// NewSampler validates config and returns a Sampler.
func NewSampler(config SamplerConfig) (*Sampler, error) {
	if config.Source == nil {
		return nil, errors.New("input: sampler requires a Source")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Deadzone <= 0 {
		config.Deadzone = DefaultDeadzone
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultSampleInterval
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	sampler := &Sampler{
		source:         config.Source,
		clock:          config.Clock,
		logger:         config.Logger,
		deadzone:       config.Deadzone,
		sampleInterval: config.SampleInterval,
		frameInterval:  config.FrameInterval,
		deviceType:     config.DeviceType,
		emit:           config.Emit,
		state:          newLatches(KindNone),
	}
	sampler.ready.Store(true)
	return sampler, nil
}

// Run drives Tick from a ticker until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick runs one scheduler tick. It samples and returns the new vector
// when at least the sample interval has passed since the previous
// sample; otherwise it returns false and does nothing.
func (s *Sampler) Tick(now time.Time) (control.Vector, bool) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if !s.lastSample.IsZero() && now.Sub(s.lastSample) < s.sampleInterval {
		return control.Vector{}, false
	}
	s.lastSample = now

	vector := s.sample(now)
	s.latest.Store(&vector)
	if s.emit != nil {
		s.emit(vector)
	}
	return vector, true
}

func (s *Sampler) sample(now time.Time) control.Vector {
	pads, err := s.source.Poll()
	if err != nil {
		if s.ready.Swap(false) {
			s.logger.Error("input device unavailable", "error", err)
		}
		s.switchProfile(KindNone)
		return control.Neutral(s.fallbackDeviceType(), now)
	}
	if !s.ready.Swap(true) {
		s.logger.Info("input device available again")
	}

	profile := Classify(pads)
	if profile == nil {
		s.switchProfile(KindNone)
		return control.Neutral(s.fallbackDeviceType(), now)
	}
	s.switchProfile(profile.Kind())
	vector := profile.vector(s.state, s.deadzone, now)
	if s.deviceType != "" {
		vector.DeviceType = s.deviceType
	}
	if s.state.shifted {
		s.logger.Info("gear selected", "gear", vector.Gear.String(), "profile", profile.Kind().String())
	}
	return vector
}

// switchProfile resets the latches when the topology changes.
func (s *Sampler) switchProfile(kind Kind) {
	if s.state.kind == kind {
		return
	}
	s.logger.Info("controller layout changed", "from", s.state.kind.String(), "to", kind.String())
	s.state = newLatches(kind)
	s.kind.Store(int32(kind))
}

func (s *Sampler) fallbackDeviceType() control.DeviceType {
	if s.deviceType != "" {
		return s.deviceType
	}
	return control.Excavator
}

// Latest returns the most recent vector, if any sample has run.
func (s *Sampler) Latest() (control.Vector, bool) {
	vector := s.latest.Load()
	if vector == nil {
		return control.Vector{}, false
	}
	return *vector, true
}

// Ready reports whether the source answered the last poll.
func (s *Sampler) Ready() bool { return s.ready.Load() }

// Profile returns the topology classified on the last sample.
func (s *Sampler) Profile() Kind { return Kind(s.kind.Load()) }
