// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/lib/config"
)

// Compile-time interface checks.
var (
	_ Link    = (*PeerLink)(nil)
	_ Channel = (*dataChannel)(nil)
)

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before giving up on a description.
const iceGatherTimeout = 15 * time.Second

// LinkConfig configures a PeerLink.
type LinkConfig struct {
	// Role decides which side creates the data channels. The controller
	// creates them; the machine accepts them by label.
	Role config.Role

	ICEServers []webrtc.ICEServer

	// Microphone, when set on the controller, makes the audio
	// transceiver send-receive. Nil means receive-only audio.
	Microphone Microphone

	Logger *slog.Logger
}

// PeerLink is a Link on a pion PeerConnection.
type PeerLink struct {
	connection *webrtc.PeerConnection
	role       config.Role
	handlers   Handlers
	logger     *slog.Logger

	// frames counts video frames received on every remote track.
	frames atomic.Uint64

	mu       sync.Mutex
	channels map[string]*dataChannel
	voice    bool
}

// NewPeerLink creates the PeerConnection and, for the controller role,
// its data channels and media transceivers. Negotiation has not begun
// when it returns.
func NewPeerLink(cfg LinkConfig, handlers Handlers) (*PeerLink, error) {
	if cfg.Logger == nil {
		return nil, errors.New("transport: LinkConfig.Logger is required")
	}

	// Loopback candidates let a console and a simulator share a host.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	link := &PeerLink{
		connection: pc,
		role:       cfg.Role,
		handlers:   handlers,
		logger:     cfg.Logger,
		channels:   make(map[string]*dataChannel),
	}

	pc.OnICECandidate(link.handleCandidate)
	pc.OnICEConnectionStateChange(link.handleICEStateChange)
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		link.logger.Info("remote track", "kind", remote.Kind().String(), "id", remote.ID())
		track := newRemoteTrack(remote, &link.frames)
		if link.handlers.Track == nil {
			go track.Discard()
			return
		}
		link.handlers.Track(track)
	})

	switch cfg.Role {
	case config.RoleMachine:
		pc.OnDataChannel(link.handleInboundDataChannel)
	default:
		if err := link.setupController(cfg.Microphone); err != nil {
			pc.Close()
			return nil, err
		}
	}
	return link, nil
}

// NewFactory returns a Factory building PeerLinks with cfg.
func NewFactory(cfg LinkConfig) Factory {
	return func(handlers Handlers) (Link, error) {
		return NewPeerLink(cfg, handlers)
	}
}

func (l *PeerLink) setupController(microphone Microphone) error {
	// Stale commands are discarded rather than retried.
	ordered := false
	retransmits := uint16(0)
	for _, label := range []string{ControlsLabel, TelemetryLabel} {
		dc, err := l.connection.CreateDataChannel(label, &webrtc.DataChannelInit{
			Ordered:        &ordered,
			MaxRetransmits: &retransmits,
		})
		if err != nil {
			return fmt.Errorf("creating data channel %s: %w", label, err)
		}
		l.attach(dc)
	}

	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if _, err := l.connection.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
		return fmt.Errorf("adding video transceiver: %w", err)
	}

	if microphone != nil {
		track, err := microphone.Track()
		if err == nil {
			_, err = l.connection.AddTransceiverFromTrack(track,
				webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
		}
		if err == nil {
			l.voice = true
			return nil
		}
		l.logger.Warn("microphone unavailable, voice disabled", "error", err)
	}
	if _, err := l.connection.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
		return fmt.Errorf("adding audio transceiver: %w", err)
	}
	return nil
}

// VoiceReady reports whether the local microphone track is attached.
func (l *PeerLink) VoiceReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voice
}

func (l *PeerLink) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := l.connection.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating SDP offer: %w", err)
	}
	return l.commitLocal(ctx, offer)
}

func (l *PeerLink) AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.connection.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("setting remote offer: %w", err)
	}
	answer, err := l.connection.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating SDP answer: %w", err)
	}
	return l.commitLocal(ctx, answer)
}

// commitLocal sets the local description and waits for gathering so
// the returned description carries every candidate.
func (l *PeerLink) commitLocal(ctx context.Context, description webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(l.connection)
	if err := l.connection.SetLocalDescription(description); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("setting local description: %w", err)
	}

	timer := time.NewTimer(iceGatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		return webrtc.SessionDescription{}, fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	local := l.connection.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, errors.New("local description missing after gathering")
	}
	return *local, nil
}

func (l *PeerLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := l.connection.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	return nil
}

func (l *PeerLink) AddCandidate(candidate webrtc.ICECandidateInit) error {
	if err := l.connection.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("adding ICE candidate: %w", err)
	}
	return nil
}

func (l *PeerLink) Channel(label string) (Channel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	channel, ok := l.channels[label]
	if !ok {
		return nil, false
	}
	return channel, true
}

func (l *PeerLink) Counters() (Counters, error) {
	if l.connection.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return Counters{}, webrtc.ErrConnectionClosed
	}
	counters := CountersFromReport(l.connection.GetStats())
	counters.FramesReceived = l.frames.Load()
	return counters, nil
}

// Close closes the PeerConnection and with it every channel and track.
func (l *PeerLink) Close() error {
	return l.connection.Close()
}

func (l *PeerLink) handleCandidate(candidate *webrtc.ICECandidate) {
	// A nil candidate marks the end of gathering.
	if candidate == nil || l.handlers.Candidate == nil {
		return
	}
	l.handlers.Candidate(candidate.ToJSON())
}

func (l *PeerLink) handleICEStateChange(state webrtc.ICEConnectionState) {
	l.logger.Info("ICE state change", "role", string(l.role), "state", state.String())
	if l.handlers.State != nil {
		l.handlers.State(state)
	}
}

// handleInboundDataChannel accepts the application channels by label
// and closes anything else the peer opens.
func (l *PeerLink) handleInboundDataChannel(dc *webrtc.DataChannel) {
	switch dc.Label() {
	case ControlsLabel, TelemetryLabel:
		l.logger.Debug("inbound data channel received", "label", dc.Label())
		l.attach(dc)
	default:
		l.logger.Warn("closing unexpected data channel", "label", dc.Label())
		dc.OnOpen(func() { dc.Close() })
	}
}

func (l *PeerLink) attach(dc *webrtc.DataChannel) {
	label := dc.Label()
	channel := &dataChannel{channel: dc}

	l.mu.Lock()
	l.channels[label] = channel
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.logger.Info("data channel open", "label", label)
	})
	dc.OnClose(func() {
		l.logger.Info("data channel closed", "label", label)
	})
	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		if l.handlers.Message != nil {
			l.handlers.Message(label, message.Data)
		}
	})
}

// dataChannel adapts a pion DataChannel to Channel. Payloads are sent
// as text frames; every application message is JSON.
type dataChannel struct {
	channel *webrtc.DataChannel
}

func (c *dataChannel) Label() string { return c.channel.Label() }

func (c *dataChannel) Open() bool {
	return c.channel.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *dataChannel) Send(data []byte) error {
	return c.channel.SendText(string(data))
}
