// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/lib/clock"
	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/lib/testutil"
	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

const waitTimeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testDialer hands the server end of every successful dial to the
// test and records when each dial happened. With stall set it hands
// out sockets whose writes never complete.
type testDialer struct {
	clock   clock.Clock
	failing atomic.Bool
	stall   atomic.Bool
	dials   chan time.Time
	servers chan signaling.Conn
	stalled chan *stalledConn
}

func newTestDialer(clk clock.Clock) *testDialer {
	return &testDialer{
		clock:   clk,
		dials:   make(chan time.Time, 32),
		servers: make(chan signaling.Conn, 32),
		stalled: make(chan *stalledConn, 32),
	}
}

func (d *testDialer) Dial(ctx context.Context, _ string) (signaling.Conn, error) {
	d.dials <- d.clock.Now()
	if d.failing.Load() {
		return nil, errors.New("dial tcp 127.0.0.1:8090: connection refused")
	}
	client, server := signaling.Pipe()
	if d.stall.Load() {
		conn := &stalledConn{
			Conn:    client,
			writing: make(chan struct{}, 1),
			closed:  make(chan struct{}),
		}
		d.stalled <- conn
		return conn, nil
	}
	d.servers <- server
	return client, nil
}

// stalledConn is a socket whose Send blocks until Close, like a write
// to a peer that stopped reading.
type stalledConn struct {
	signaling.Conn
	writing chan struct{}
	once    sync.Once
	closed  chan struct{}
}

func (c *stalledConn) Send(signaling.Message) error {
	select {
	case c.writing <- struct{}{}:
	default:
	}
	<-c.closed
	return io.ErrClosedPipe
}

func (c *stalledConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

type fakeChannel struct {
	label string
	open  atomic.Bool
	sent  chan []byte
}

func (c *fakeChannel) Label() string { return c.label }
func (c *fakeChannel) Open() bool    { return c.open.Load() }
func (c *fakeChannel) Send(data []byte) error {
	if !c.Open() {
		return errors.New("channel not open")
	}
	c.sent <- data
	return nil
}

type fakeLink struct {
	handlers transport.Handlers
	offerErr error
	controls *fakeChannel
	// closeGate, when set, holds Close until it is closed.
	closeGate chan struct{}

	mu         sync.Mutex
	counters   transport.Counters
	answers    []webrtc.SessionDescription
	offers     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool
}

func (l *fakeLink) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	if l.offerErr != nil {
		return webrtc.SessionDescription{}, l.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) AcceptOffer(_ context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	l.offers = append(l.offers, offer)
	l.mu.Unlock()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, answer)
	return nil
}

func (l *fakeLink) AddCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, candidate)
	return nil
}

func (l *fakeLink) Channel(label string) (transport.Channel, bool) {
	if label == transport.ControlsLabel {
		return l.controls, true
	}
	return nil, false
}

func (l *fakeLink) Counters() (transport.Counters, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters, nil
}

func (l *fakeLink) Close() error {
	if l.closeGate != nil {
		<-l.closeGate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) setCounters(counters transport.Counters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = counters
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type received struct {
	label string
	data  string
}

// harness runs a Manager against a fake clock, a pipe dialer and fake
// links.
type harness struct {
	t         *testing.T
	clock     *clock.FakeClock
	dialer    *testDialer
	links     chan *fakeLink
	offerErr  atomic.Pointer[error]
	closeGate atomic.Pointer[chan struct{}]
	manager   *Manager
	messages  chan received
	resets    atomic.Int32
}

func newHarness(t *testing.T, role config.Role) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    clock.Fake(epoch),
		links:    make(chan *fakeLink, 16),
		messages: make(chan received, 16),
	}
	h.dialer = newTestDialer(h.clock)

	manager, err := New(Config{
		Role:     role,
		Identity: string(role),
		Target:   "excavator",
		Endpoint: "ws://signal.test/ws",
		Dialer:   h.dialer,
		NewLink: func(handlers transport.Handlers) (transport.Link, error) {
			link := &fakeLink{
				handlers: handlers,
				controls: &fakeChannel{label: transport.ControlsLabel, sent: make(chan []byte, 16)},
			}
			if err := h.offerErr.Load(); err != nil {
				link.offerErr = *err
			}
			if gate := h.closeGate.Load(); gate != nil {
				link.closeGate = *gate
			}
			h.links <- link
			return link, nil
		},
		Clock:  h.clock,
		Logger: testLogger(),
		OnMessage: func(label string, data []byte) {
			h.messages <- received{label: label, data: string(data)}
		},
		OnReset: func() { h.resets.Add(1) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.manager = manager

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-manager.Done()
	})
	return h
}

// inbox delivers a server-side conn's messages on a channel.
func inbox(conn signaling.Conn) <-chan signaling.Message {
	messages := make(chan signaling.Message, 64)
	go func() {
		defer close(messages)
		for {
			message, err := conn.Receive()
			if err != nil {
				return
			}
			messages <- message
		}
	}()
	return messages
}

// expect reads the next message and checks its type.
func expect(t *testing.T, messages <-chan signaling.Message, messageType string) signaling.Message {
	t.Helper()
	message := testutil.RequireReceive(t, messages, waitTimeout, "waiting for %s", messageType)
	if message.Type != messageType {
		t.Fatalf("message = %+v, want type %s", message, messageType)
	}
	return message
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	testutil.Eventually(h.t, waitTimeout, func() bool { return h.manager.State() == want },
		"waiting for state %s (have %s)", want, h.manager.State())
}

// connectController enables the manager, completes registration and the
// offer, and returns the server side of the socket and the link.
func (h *harness) connectController() (signaling.Conn, <-chan signaling.Message, *fakeLink) {
	h.t.Helper()
	h.manager.Enable()
	testutil.RequireReceive(h.t, h.dialer.dials, waitTimeout, "waiting for dial")
	server := testutil.RequireReceive(h.t, h.dialer.servers, waitTimeout, "waiting for socket")
	messages := inbox(server)
	register := expect(h.t, messages, signaling.TypeRegister)
	if register.Identity != "controller" {
		h.t.Fatalf("register identity = %q, want controller", register.Identity)
	}
	link := testutil.RequireReceive(h.t, h.links, waitTimeout, "waiting for link")
	offer := expect(h.t, messages, signaling.TypeOffer)
	if offer.To != "excavator" || offer.From != "controller" {
		h.t.Fatalf("offer addressed %s -> %s", offer.From, offer.To)
	}
	return server, messages, link
}

func (h *harness) connected() (signaling.Conn, <-chan signaling.Message, *fakeLink) {
	h.t.Helper()
	server, messages, link := h.connectController()
	link.handlers.State(webrtc.ICEConnectionStateConnected)
	h.waitState(Connected)
	return server, messages, link
}
