// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/dispatch"
	"github.com/MagicSakuraD/exca-teleop/input"
	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
	"github.com/MagicSakuraD/exca-teleop/session"
	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/telemetry"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

// HornPulse is how long a keyboard horn press holds the horn.
const HornPulse = 200 * time.Millisecond

// Options configures a Console. Config and Logger are required.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// Book receives operator-visible log entries. When nil the Console
	// creates one and tees Logger into it. When set, the caller is
	// expected to have built Logger on a logbook.Handler for it.
	Book *logbook.Book

	Clock clock.Clock

	// Dialer defaults to signaling.WebSocketDialer.
	Dialer signaling.Dialer

	// NewLink defaults to transport.NewFactory over the configured
	// ICE servers.
	NewLink transport.Factory

	// Source defaults to an input.StaticSource with no pads, which
	// yields neutral vectors.
	Source input.Source

	// Microphone is the capture collaborator. It is only used when
	// the configuration enables the microphone.
	Microphone transport.Microphone

	// OnTrack is the media sink, called once per remote track.
	OnTrack func(*transport.RemoteTrack)
}

// Console is one operator station: a peer session, an input sampler
// feeding the dispatcher, and a telemetry watchdog.
type Console struct {
	config *config.Config
	logger *slog.Logger
	book   *logbook.Book
	clock  clock.Clock

	overrides  *control.OverrideStore
	session    *session.Manager
	sampler    *input.Sampler
	dispatcher *dispatch.Dispatcher
	watchdog   *telemetry.Watchdog

	microphone   transport.Microphone
	voiceReady   bool
	speakerMuted atomic.Bool

	hornMu    sync.Mutex
	hornTimer *clock.Timer
}

// New wires the components described by options.Config.
func New(options Options) (*Console, error) {
	if options.Config == nil {
		return nil, errors.New("console: Options.Config is required")
	}
	if options.Logger == nil {
		return nil, errors.New("console: Options.Logger is required")
	}
	cfg := options.Config
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Book == nil {
		options.Book = logbook.New(0)
		options.Logger = slog.New(logbook.NewHandler(options.Logger.Handler(), options.Book))
	}
	if options.Dialer == nil {
		options.Dialer = signaling.WebSocketDialer{}
	}
	if options.Source == nil {
		options.Source = &input.StaticSource{}
	}

	c := &Console{
		config:    cfg,
		logger:    options.Logger,
		book:      options.Book,
		clock:     options.Clock,
		overrides: &control.OverrideStore{},
	}
	c.setupVoice(cfg.MicrophoneEnabled, options.Microphone)

	if options.NewLink == nil {
		linkConfig := transport.LinkConfig{
			Role:       cfg.Role,
			ICEServers: transport.ICEServers(cfg.ICEServers),
			Logger:     c.logger.With("component", "transport"),
		}
		if c.voiceReady {
			linkConfig.Microphone = c.microphone
		}
		options.NewLink = transport.NewFactory(linkConfig)
	}

	c.watchdog = telemetry.NewWatchdog(telemetry.WatchdogConfig{
		Clock:      c.clock,
		Logger:     c.logger.With("component", "telemetry"),
		Interval:   cfg.Watchdog.Interval.Duration,
		StaleAfter: cfg.Watchdog.StaleAfter.Duration,
		Connected:  func() bool { return c.State() == session.Connected },
	})

	var err error
	c.session, err = session.New(session.Config{
		Role:     cfg.Role,
		Identity: cfg.LocalIdentity,
		Target:   cfg.TargetPeer,
		Endpoint: cfg.SignalingEndpoint,
		Dialer:   options.Dialer,
		NewLink:  options.NewLink,
		Clock:    c.clock,
		Logger:   c.logger.With("component", "session"),
		Backoff: session.Backoff{
			Base:        cfg.Session.ReconnectBase.Duration,
			Factor:      cfg.Session.ReconnectFactor,
			MaxDelay:    cfg.Session.ReconnectMaxDelay.Duration,
			MaxAttempts: cfg.Session.ReconnectMaxAttempts,
		},
		HeartbeatInterval: cfg.Session.HeartbeatInterval.Duration,
		StatsInterval:     cfg.Session.StatsInterval.Duration,
		OnMessage:         c.handleMessage,
		OnTrack:           options.OnTrack,
		OnStateChange: func(state session.State) {
			if state == session.Connected {
				c.watchdog.Reset()
			}
		},
		OnReset: c.watchdog.Reset,
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	dispatchConfig := dispatch.Config{
		Channels:  c.session,
		Overrides: c.overrides,
		Logger:    c.logger.With("component", "dispatch"),
	}
	if cfg.Watchdog.FailsafeEstop {
		dispatchConfig.Failsafe = c.watchdog.Stale
	}
	c.dispatcher, err = dispatch.New(dispatchConfig)
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	c.sampler, err = input.NewSampler(input.SamplerConfig{
		Source:         options.Source,
		Clock:          c.clock,
		Logger:         c.logger.With("component", "input"),
		Deadzone:       cfg.Input.Deadzone,
		SampleInterval: cfg.Input.SampleInterval.Duration,
		FrameInterval:  cfg.Input.FrameInterval.Duration,
		DeviceType:     control.DeviceType(cfg.DeviceType),
		Emit: func(vector control.Vector) {
			c.dispatcher.Dispatch(vector)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}
	return c, nil
}

func (c *Console) setupVoice(enabled bool, microphone transport.Microphone) {
	if !enabled {
		return
	}
	if microphone == nil {
		c.logger.Error("microphone enabled but no capture device is available")
		return
	}
	if _, err := microphone.Track(); err != nil {
		c.logger.Error("microphone unavailable, voice disabled", "error", err)
		return
	}
	c.microphone = microphone
	c.voiceReady = true
}

func (c *Console) handleMessage(label string, data []byte) {
	switch label {
	case transport.TelemetryLabel:
		c.watchdog.Receive(data)
	default:
		c.logger.Debug("ignoring data channel message", "label", label, "bytes", len(data))
	}
}

// Run drives the session, the sampler, and the watchdog until ctx is
// canceled or one of them fails.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	start("session", c.session.Run)
	start("input", c.sampler.Run)
	start("telemetry", c.watchdog.Run)
	wg.Wait()
	close(errs)

	c.hornMu.Lock()
	if c.hornTimer != nil {
		c.hornTimer.Stop()
		c.hornTimer = nil
	}
	c.hornMu.Unlock()

	var failures []error
	for err := range errs {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// Connect enables the session.
func (c *Console) Connect() { c.session.Enable() }

// Disconnect tears the session down without reconnecting.
func (c *Console) Disconnect() { c.session.Disable() }

// ToggleConnection connects when idle or when reconnection has given
// up, and disconnects otherwise.
func (c *Console) ToggleConnection() {
	if c.session.State() == session.Idle || c.session.Exhausted() {
		c.Connect()
		return
	}
	c.Disconnect()
}

// State returns the connection state.
func (c *Console) State() session.State { return c.session.State() }

// Exhausted reports whether reconnection has given up.
func (c *Console) Exhausted() bool { return c.session.Exhausted() }

// Stats returns the latest link quality sample.
func (c *Console) Stats() session.Stats { return c.session.Stats() }

// Ping returns the rounded round-trip time in milliseconds, 0 when
// unknown.
func (c *Console) Ping() int { return c.session.Ping() }

// Telemetry returns the latest frame and its freshness.
func (c *Console) Telemetry() telemetry.Snapshot { return c.watchdog.Snapshot() }

// Logs returns the retained log entries after the given sequence
// number. Pass 0 for everything.
func (c *Console) Logs(after uint64) []logbook.Entry { return c.book.Since(after) }

// Vector returns the last merged command handed to the dispatcher.
func (c *Console) Vector() (control.Vector, bool) { return c.dispatcher.Last() }

// InputReady reports whether the input source is delivering.
func (c *Console) InputReady() bool { return c.sampler.Ready() }

// Profile returns the classified input device profile.
func (c *Console) Profile() input.Kind { return c.sampler.Profile() }

// Overrides returns the current UI override.
func (c *Console) Overrides() control.Override { return c.overrides.Snapshot() }

// SetOverride merges patch into the UI override.
func (c *Console) SetOverride(patch control.Override) { c.overrides.Patch(patch) }

// VoiceReady reports whether a microphone is attached.
func (c *Console) VoiceReady() bool { return c.voiceReady }

// Muted reports whether the microphone is muted. It is false when
// voice is unavailable.
func (c *Console) Muted() bool {
	return c.voiceReady && c.microphone.Muted()
}

// ToggleMute mutes or unmutes the microphone.
func (c *Console) ToggleMute() {
	if !c.voiceReady {
		c.logger.Error("voice unavailable, cannot toggle mute")
		return
	}
	muted := !c.microphone.Muted()
	c.microphone.SetMuted(muted)
	c.logger.Info("microphone toggled", "muted", muted)
}

// ToggleSpeaker flips the speaker-muted flag read by the media sink.
func (c *Console) ToggleSpeaker() {
	muted := !c.speakerMuted.Load()
	c.speakerMuted.Store(muted)
	c.logger.Info("speaker toggled", "muted", muted)
}

// SpeakerMuted reports the speaker flag.
func (c *Console) SpeakerMuted() bool { return c.speakerMuted.Load() }
