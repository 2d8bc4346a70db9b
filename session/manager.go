// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

// ErrReconnectBudgetExhausted is reported once every reconnection
// attempt has failed. The session stays Disconnected until Enable.
var ErrReconnectBudgetExhausted = errors.New("session: reconnection attempts exhausted")

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStatsInterval     = time.Second

	eventBuffer = 256
)

// Config configures a Manager.
type Config struct {
	Role     config.Role
	Identity string
	// Target is the peer the controller offers to. The machine answers
	// whoever sent the offer and ignores Target.
	Target   string
	Endpoint string

	Dialer  signaling.Dialer
	NewLink transport.Factory
	Clock   clock.Clock
	Logger  *slog.Logger

	// Backoff defaults to DefaultBackoff when its Base is zero.
	Backoff           Backoff
	HeartbeatInterval time.Duration
	StatsInterval     time.Duration

	// OnMessage receives every inbound data channel message of the
	// current link.
	OnMessage func(label string, data []byte)
	// OnTrack receives every remote media track of the current link.
	OnTrack func(*transport.RemoteTrack)
	// OnStateChange is called from the Manager goroutine after every
	// state transition.
	OnStateChange func(State)
	// OnReset is called from the Manager goroutine at teardown, after
	// stats and ping have been cleared, so collaborators can drop their
	// own derived state.
	OnReset func()
}

// Manager owns one peer session. Create it with New, start it with
// Run, and drive it with Enable and Disable.
type Manager struct {
	role              config.Role
	identity          string
	target            string
	endpoint          string
	dialer            signaling.Dialer
	newLink           transport.Factory
	clock             clock.Clock
	logger            *slog.Logger
	backoff           Backoff
	heartbeatInterval time.Duration
	statsInterval     time.Duration
	onMessage         func(string, []byte)
	onTrack           func(*transport.RemoteTrack)
	onStateChange     func(State)
	onReset           func()

	events chan event
	done   chan struct{}

	// Published for readers on other goroutines.
	state      atomic.Int32
	generation atomic.Uint64
	exhausted  atomic.Bool
	current    atomic.Pointer[linkRef]
	statsMu    sync.Mutex
	stats      Stats

	// Owned by the Run goroutine.
	runCtx         context.Context
	enabled        bool
	attempt        int
	sender         *sender
	link           transport.Link
	peer           string
	cancelAttempt  context.CancelFunc
	reconnectTimer *clock.Timer
	heartbeatTimer *clock.Timer
	statsTimer     *clock.Timer
	collector      collector
}

type linkRef struct {
	link transport.Link
}

// New validates cfg and returns an idle Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Identity == "" {
		return nil, errors.New("session: Config.Identity is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("session: Config.Dialer is required")
	}
	if cfg.NewLink == nil {
		return nil, errors.New("session: Config.NewLink is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("session: Config.Logger is required")
	}
	if cfg.Role == "" {
		cfg.Role = config.RoleController
	}
	if cfg.Role == config.RoleController && cfg.Target == "" {
		return nil, errors.New("session: Config.Target is required for the controller role")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}

	return &Manager{
		role:              cfg.Role,
		identity:          cfg.Identity,
		target:            cfg.Target,
		endpoint:          cfg.Endpoint,
		dialer:            cfg.Dialer,
		newLink:           cfg.NewLink,
		clock:             cfg.Clock,
		logger:            cfg.Logger.With("identity", cfg.Identity, "role", string(cfg.Role)),
		backoff:           cfg.Backoff,
		heartbeatInterval: cfg.HeartbeatInterval,
		statsInterval:     cfg.StatsInterval,
		onMessage:         cfg.OnMessage,
		onTrack:           cfg.OnTrack,
		onStateChange:     cfg.OnStateChange,
		onReset:           cfg.OnReset,
		events:            make(chan event, eventBuffer),
		done:              make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Stats returns the latest stats sample. It is zero until the first
// sample of a connection and after teardown.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// Ping returns the rounded round-trip time in milliseconds, 0 when
// unknown.
func (m *Manager) Ping() int { return m.Stats().PingMillis() }

// Exhausted reports whether reconnection gave up.
func (m *Manager) Exhausted() bool { return m.exhausted.Load() }

// Channel returns the current link's data channel with the given label.
// The result is a send capability only; the link stays owned by the
// Manager.
func (m *Manager) Channel(label string) (transport.Channel, bool) {
	ref := m.current.Load()
	if ref == nil {
		return nil, false
	}
	return ref.link.Channel(label)
}

// Enable starts connecting. It also restarts a session whose
// reconnection budget is exhausted.
func (m *Manager) Enable() { m.post(event{kind: eventEnable}) }

// Disable tears the session down and suppresses reconnection.
func (m *Manager) Disable() { m.post(event{kind: eventDisable}) }

// Done is closed when Run returns.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Run processes events until ctx is cancelled, then tears down. Must be
// called exactly once.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	m.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			m.setState(Idle)
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// post queues an event for the Run goroutine. Callbacks from timers and
// socket readers go through here.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// postFrom stamps ev with the generation it was created under.
func (m *Manager) postFrom(generation uint64, ev event) {
	ev.generation = generation
	m.post(ev)
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case eventEnable:
		m.handleEnable()
		return
	case eventDisable:
		m.handleDisable()
		return
	}

	if ev.generation != m.generation.Load() {
		ev.discard()
		return
	}

	switch ev.kind {
	case eventDialed:
		m.handleDialed(ev)
	case eventRegistered:
		m.handleRegistered()
	case eventSendFailed:
		m.handleSendFailed(ev)
	case eventSignalingClosed:
		m.handleSignalingClosed(ev.err)
	case eventMessage:
		m.handleMessage(ev.message)
	case eventLocalDescription:
		m.handleLocalDescription(ev)
	case eventLocalCandidate:
		if ev.link == m.link && m.sender != nil && m.peer != "" {
			m.sendCandidate(ev.candidate)
		}
	case eventICEState:
		if ev.link == m.link {
			m.handleICEState(ev.iceState)
		}
	case eventReconnect:
		m.reconnectTimer = nil
		if m.enabled {
			m.connect()
		}
	case eventHeartbeat:
		m.handleHeartbeat()
	case eventStatsDue:
		m.handleStatsDue()
	}
}

func (m *Manager) handleEnable() {
	if m.enabled && !m.exhausted.Load() {
		return
	}
	m.logger.Info("session enabled", "endpoint", m.endpoint, "target", m.target)
	m.enabled = true
	m.exhausted.Store(false)
	m.attempt = 0
	m.teardown()
	m.connect()
}

func (m *Manager) handleDisable() {
	if !m.enabled && m.State() == Idle {
		return
	}
	m.logger.Info("session disabled")
	m.enabled = false
	m.exhausted.Store(false)
	m.teardown()
	m.setState(Idle)
}

// connect starts one attempt: a fresh generation and a dial in the
// background.
func (m *Manager) connect() {
	generation := m.generation.Add(1)
	m.setState(Connecting)

	ctx, cancel := context.WithCancel(m.runCtx)
	m.cancelAttempt = cancel
	go func() {
		conn, err := m.dialer.Dial(ctx, m.endpoint)
		m.postFrom(generation, event{kind: eventDialed, conn: conn, err: err})
	}()
}

func (m *Manager) handleDialed(ev event) {
	if ev.err != nil {
		m.logger.Warn("signaling connection failed", "endpoint", m.endpoint, "error", ev.err)
		m.fail()
		return
	}
	generation := m.generation.Load()
	m.sender = m.startSender(generation, ev.conn)
	m.send(signaling.Register(m.identity))
}

// handleRegistered runs once the register message is on the wire.
func (m *Manager) handleRegistered() {
	m.attempt = 0
	m.logger.Info("registered with signaling server")

	generation := m.generation.Load()
	go m.readSignaling(generation, m.sender.conn)
	m.armHeartbeat()

	if m.role == config.RoleController {
		m.peer = m.target
		m.startLink(generation)
		link := m.link
		if link == nil {
			return
		}
		ctx := m.attemptContext()
		go func() {
			offer, err := link.CreateOffer(ctx)
			m.postFrom(generation, event{kind: eventLocalDescription, link: link, description: offer, err: err})
		}()
	}
}

func (m *Manager) attemptContext() context.Context {
	ctx, cancel := context.WithCancel(m.runCtx)
	previous := m.cancelAttempt
	m.cancelAttempt = func() {
		cancel()
		if previous != nil {
			previous()
		}
	}
	return ctx
}

func (m *Manager) readSignaling(generation uint64, conn signaling.Conn) {
	for {
		message, err := conn.Receive()
		if errors.Is(err, signaling.ErrMalformed) {
			m.logger.Debug("dropping malformed signaling message", "error", err)
			continue
		}
		if err != nil {
			m.postFrom(generation, event{kind: eventSignalingClosed, err: err})
			return
		}
		m.postFrom(generation, event{kind: eventMessage, message: message})
	}
}

// startLink builds a link whose callbacks are bound to the current
// generation and to the link itself.
func (m *Manager) startLink(generation uint64) {
	var link transport.Link
	var ready = make(chan struct{})
	handlers := transport.Handlers{
		Candidate: func(candidate webrtc.ICECandidateInit) {
			<-ready
			m.postFrom(generation, event{kind: eventLocalCandidate, link: link, candidate: candidate})
		},
		State: func(state webrtc.ICEConnectionState) {
			<-ready
			m.postFrom(generation, event{kind: eventICEState, link: link, iceState: state})
		},
		Message: func(label string, data []byte) {
			if m.onMessage != nil && m.generation.Load() == generation {
				m.onMessage(label, data)
			}
		},
		Track: func(track *transport.RemoteTrack) {
			if m.onTrack == nil || m.generation.Load() != generation {
				go track.Discard()
				return
			}
			m.onTrack(track)
		},
	}

	created, err := m.newLink(handlers)
	if err != nil {
		close(ready)
		m.logger.Error("creating peer link failed", "error", err)
		m.fail()
		return
	}
	link = created
	close(ready)

	m.link = link
	m.current.Store(&linkRef{link: link})
}

func (m *Manager) handleMessage(message signaling.Message) {
	switch message.Type {
	case signaling.TypeAnswer:
		m.handleAnswer(message)
	case signaling.TypeOffer:
		m.handleOffer(message)
	case signaling.TypeCandidate:
		m.handleRemoteCandidate(message)
	case signaling.TypePing, signaling.TypePong, signaling.TypeRegister:
	default:
		m.logger.Debug("ignoring signaling message", "type", message.Type, "from", message.From)
	}
}

func (m *Manager) handleAnswer(message signaling.Message) {
	if m.role != config.RoleController || m.link == nil {
		return
	}
	answer, err := message.SessionDescription()
	if err == nil {
		err = m.link.ApplyAnswer(answer)
	}
	if err != nil {
		m.logger.Error("applying answer failed", "from", message.From, "error", err)
		m.fail()
		return
	}
	m.logger.Info("answer applied", "from", message.From)
}

// handleOffer answers an offer on the machine side. A new offer
// replaces the current link.
func (m *Manager) handleOffer(message signaling.Message) {
	if m.role != config.RoleMachine {
		return
	}
	offer, err := message.SessionDescription()
	if err != nil {
		m.logger.Warn("dropping malformed offer", "from", message.From, "error", err)
		return
	}
	if m.link != nil {
		m.logger.Info("replacing peer link for new offer", "from", message.From)
		m.closeLink()
		if m.State() == Connected {
			m.setState(Connecting)
		}
	}

	m.peer = message.From
	generation := m.generation.Load()
	m.startLink(generation)
	link := m.link
	if link == nil {
		return
	}
	ctx := m.attemptContext()
	go func() {
		answer, err := link.AcceptOffer(ctx, offer)
		m.postFrom(generation, event{kind: eventLocalDescription, link: link, description: answer, err: err})
	}()
}

func (m *Manager) handleLocalDescription(ev event) {
	if ev.link != m.link {
		return
	}
	if ev.err != nil {
		m.logger.Error("negotiation failed", "error", ev.err)
		m.fail()
		return
	}
	message, err := signaling.Description(m.identity, m.peer, ev.description)
	if err != nil {
		m.logger.Warn("encoding session description failed", "to", m.peer, "error", err)
		return
	}
	if m.send(message) {
		m.logger.Info("session description queued", "type", message.Type, "to", m.peer)
	}
}

func (m *Manager) handleRemoteCandidate(message signaling.Message) {
	if m.link == nil {
		m.logger.Debug("candidate before peer link ignored", "from", message.From)
		return
	}
	candidate, err := message.ICECandidate()
	if err == nil {
		err = m.link.AddCandidate(candidate)
	}
	if err != nil {
		m.logger.Debug("remote candidate ignored", "from", message.From, "error", err)
	}
}

func (m *Manager) sendCandidate(candidate webrtc.ICECandidateInit) {
	message, err := signaling.Candidate(m.identity, m.peer, candidate)
	if err != nil {
		m.logger.Debug("encoding candidate failed", "to", m.peer, "error", err)
		return
	}
	m.send(message)
}

// send queues message on the current socket. A socket whose queue is
// full is treated as lost.
func (m *Manager) send(message signaling.Message) bool {
	if m.sender.enqueue(message) {
		return true
	}
	m.logger.Warn("signaling send queue full", "type", message.Type, "queued", senderQueue)
	m.fail()
	return false
}

// handleSendFailed reports a write the sender could not complete. Only
// a failed register ends the attempt; a broken socket also ends the
// read side, which reports the loss.
func (m *Manager) handleSendFailed(ev event) {
	switch ev.message.Type {
	case signaling.TypeRegister:
		m.logger.Warn("sending register failed", "error", ev.err)
		m.fail()
	case signaling.TypeOffer, signaling.TypeAnswer:
		m.logger.Warn("sending session description failed", "type", ev.message.Type, "to", ev.message.To, "error", ev.err)
	case signaling.TypePing:
		m.logger.Debug("heartbeat failed", "error", ev.err)
	default:
		m.logger.Debug("sending signaling message failed", "type", ev.message.Type, "error", ev.err)
	}
}

func (m *Manager) handleICEState(state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if m.State() == Connected {
			return
		}
		m.collector.reset()
		m.setState(Connected)
		m.armStats()
	case webrtc.ICEConnectionStateDisconnected:
		if m.State() != Connected {
			return
		}
		// ICE may still recover on the same link.
		m.statsTimer.Stop()
		m.statsTimer = nil
		m.setState(Disconnected)
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		m.logger.Warn("peer link lost", "ice_state", state.String())
		m.fail()
	}
}

func (m *Manager) handleSignalingClosed(err error) {
	if !m.enabled {
		return
	}
	if signaling.IsExpectedCloseError(err) {
		m.logger.Warn("signaling connection closed")
	} else {
		m.logger.Warn("signaling connection lost", "error", err)
	}
	m.fail()
}

func (m *Manager) armHeartbeat() {
	generation := m.generation.Load()
	m.heartbeatTimer = m.clock.AfterFunc(m.heartbeatInterval, func() {
		m.postFrom(generation, event{kind: eventHeartbeat})
	})
}

func (m *Manager) handleHeartbeat() {
	if m.sender == nil {
		return
	}
	if !m.send(signaling.Ping(m.identity)) {
		return
	}
	m.armHeartbeat()
}

func (m *Manager) armStats() {
	generation := m.generation.Load()
	m.statsTimer = m.clock.AfterFunc(m.statsInterval, func() {
		m.postFrom(generation, event{kind: eventStatsDue})
	})
}

func (m *Manager) handleStatsDue() {
	m.statsTimer = nil
	if m.State() != Connected || m.link == nil {
		return
	}
	counters, err := m.link.Counters()
	if err != nil {
		// Stats failures never change connection state.
		m.logger.Debug("reading link counters failed", "error", err)
	} else {
		stats := m.collector.sample(counters, m.clock.Now())
		m.statsMu.Lock()
		m.stats = stats
		m.statsMu.Unlock()
	}
	m.armStats()
}

// fail tears the attempt down and schedules the next one.
func (m *Manager) fail() {
	m.teardown()
	m.setState(Disconnected)
	if m.enabled {
		m.scheduleReconnect()
	}
}

func (m *Manager) scheduleReconnect() {
	if m.attempt >= m.backoff.MaxAttempts {
		m.exhausted.Store(true)
		m.logger.Error("giving up on reconnection", "attempts", m.attempt, "error", ErrReconnectBudgetExhausted)
		return
	}
	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	m.logger.Info("reconnecting", "attempt", m.attempt, "delay", delay)

	generation := m.generation.Load()
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.postFrom(generation, event{kind: eventReconnect})
	})
}

// teardown cancels every timer and in-flight operation, closes the link
// and the socket in the background, and clears derived state. Advancing
// the generation invalidates every event already queued for the old
// attempt.
func (m *Manager) teardown() {
	m.generation.Add(1)

	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}
	for _, timer := range []**clock.Timer{&m.reconnectTimer, &m.heartbeatTimer, &m.statsTimer} {
		(*timer).Stop()
		*timer = nil
	}
	m.closeLink()
	if m.sender != nil {
		m.sender.close()
		m.sender = nil
	}
	m.peer = ""

	m.collector.reset()
	m.statsMu.Lock()
	m.stats = Stats{}
	m.statsMu.Unlock()
	if m.onReset != nil {
		m.onReset()
	}
}

func (m *Manager) closeLink() {
	if m.link == nil {
		return
	}
	m.current.Store(nil)
	if m.statsTimer != nil {
		m.statsTimer.Stop()
		m.statsTimer = nil
	}
	go func(link transport.Link) {
		if err := link.Close(); err != nil {
			m.logger.Debug("closing peer link", "error", err)
		}
	}(m.link)
	m.link = nil
}

func (m *Manager) setState(state State) {
	previous := State(m.state.Swap(int32(state)))
	if previous == state {
		return
	}
	m.logger.Info("connection state changed", "state", state.String(), "previous", previous.String())
	if m.onStateChange != nil {
		m.onStateChange(state)
	}
}
