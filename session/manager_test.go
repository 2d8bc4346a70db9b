// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/lib/config"
	"github.com/MagicSakuraD/exca-teleop/lib/testutil"
	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

func TestNewValidation(t *testing.T) {
	valid := Config{
		Identity: "controller",
		Target:   "excavator",
		Dialer:   newTestDialer(nil),
		NewLink:  func(transport.Handlers) (transport.Link, error) { return nil, errors.New("unused") },
		Logger:   testLogger(),
	}
	if _, err := New(valid); err != nil {
		t.Fatalf("New(valid): %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no identity", func(c *Config) { c.Identity = "" }},
		{"no dialer", func(c *Config) { c.Dialer = nil }},
		{"no link factory", func(c *Config) { c.NewLink = nil }},
		{"no logger", func(c *Config) { c.Logger = nil }},
		{"controller without target", func(c *Config) { c.Target = "" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid
			test.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("New succeeded")
			}
		})
	}
}

func TestControllerHandshake(t *testing.T) {
	h := newHarness(t, config.RoleController)
	if got := h.manager.State(); got != Idle {
		t.Fatalf("initial state = %s, want idle", got)
	}

	server, messages, link := h.connectController()
	if got := h.manager.State(); got != Connecting {
		t.Fatalf("state after offer = %s, want connecting", got)
	}

	// Local candidates are trickled to the target.
	link.handlers.Candidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host"})
	candidate := expect(t, messages, signaling.TypeCandidate)
	if candidate.To != "excavator" {
		t.Fatalf("candidate to = %q, want excavator", candidate.To)
	}

	answer, _ := signaling.Description("excavator", "controller",
		webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"})
	if err := server.Send(answer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	remote, _ := signaling.Candidate("excavator", "controller", webrtc.ICECandidateInit{Candidate: "candidate:2"})
	if err := server.Send(remote); err != nil {
		t.Fatalf("Send: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool {
		link.mu.Lock()
		defer link.mu.Unlock()
		return len(link.answers) == 1 && len(link.candidates) == 1
	}, "waiting for answer and candidate to be applied")

	link.handlers.State(webrtc.ICEConnectionStateConnected)
	h.waitState(Connected)

	channel, ok := h.manager.Channel(transport.ControlsLabel)
	if !ok || channel.Label() != transport.ControlsLabel {
		t.Fatalf("Channel(controls) = %v, %v", channel, ok)
	}
}

func TestMalformedAnswerDisconnects(t *testing.T) {
	h := newHarness(t, config.RoleController)
	server, _, link := h.connectController()

	if err := server.Send(signaling.Message{Type: signaling.TypeAnswer, From: "excavator", Payload: json.RawMessage(`{"type":"answer","sdp":""}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.waitState(Disconnected)
	testutil.Eventually(t, waitTimeout, link.isClosed, "link not closed after negotiation failure")
	// The failure is subject to reconnection.
	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for reconnection")
}

func TestOfferFailureSchedulesReconnect(t *testing.T) {
	h := newHarness(t, config.RoleController)
	failure := errors.New("creating SDP offer: no transceivers")
	h.offerErr.Store(&failure)

	h.manager.Enable()
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for dial")
	testutil.RequireReceive(t, h.dialer.servers, waitTimeout, "waiting for socket")
	link := testutil.RequireReceive(t, h.links, waitTimeout, "waiting for link")

	h.waitState(Disconnected)
	testutil.Eventually(t, waitTimeout, link.isClosed, "waiting for link close")
	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for reconnection")
}

// TestReconnectBackoffSchedule checks the delay before every
// reconnection attempt and that reconnection stops after the budget.
func TestReconnectBackoffSchedule(t *testing.T) {
	h := newHarness(t, config.RoleController)
	h.dialer.failing.Store(true)

	h.manager.Enable()
	previous := testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for first dial")

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
		11390625 * time.Microsecond,
		17085937500 * time.Nanosecond,
		25628906250 * time.Nanosecond,
		30 * time.Second,
	}
	for attempt, delay := range want {
		h.clock.WaitForTimers(1)
		h.clock.Advance(delay - time.Millisecond)
		testutil.RequireNoReceive(t, h.dialer.dials, 20*time.Millisecond, "attempt %d dialed early", attempt)
		h.clock.Advance(time.Millisecond)
		at := testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for attempt %d", attempt)
		if got := at.Sub(previous); got != delay {
			t.Fatalf("attempt %d delay = %v, want %v", attempt, got, delay)
		}
		previous = at
		if attempt < len(want)-1 && h.manager.Exhausted() {
			t.Fatalf("exhausted after attempt %d", attempt)
		}
	}

	testutil.Eventually(t, waitTimeout, h.manager.Exhausted, "waiting for the budget to run out")
	if got := h.manager.State(); got != Disconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
	if pending := h.clock.PendingCount(); pending != 0 {
		t.Fatalf("%d timers pending after exhaustion", pending)
	}
	h.clock.Advance(time.Hour)
	testutil.RequireNoReceive(t, h.dialer.dials, 20*time.Millisecond, "dialed after exhaustion")

	// Manual intervention restarts with a fresh budget.
	h.dialer.failing.Store(false)
	h.manager.Enable()
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for manual reconnect")
	testutil.Eventually(t, waitTimeout, func() bool { return !h.manager.Exhausted() }, "exhausted flag not cleared")
}

func TestRegistrationResetsAttempts(t *testing.T) {
	h := newHarness(t, config.RoleController)
	h.dialer.failing.Store(true)

	h.manager.Enable()
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for dial 1")
	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for dial 2")

	h.dialer.failing.Store(false)
	h.clock.WaitForTimers(1)
	h.clock.Advance(1500 * time.Millisecond)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for dial 3")
	server := testutil.RequireReceive(t, h.dialer.servers, waitTimeout, "waiting for socket")
	expect(t, inbox(server), signaling.TypeRegister)

	// An unrequested close after registration restarts the schedule.
	server.Close()
	h.waitState(Disconnected)
	h.clock.WaitForTimers(1)
	h.clock.Advance(999 * time.Millisecond)
	testutil.RequireNoReceive(t, h.dialer.dials, 20*time.Millisecond, "dialed before 1s")
	h.clock.Advance(time.Millisecond)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for reconnect after 1s")
}

func TestSignalingCloseTearsDownLink(t *testing.T) {
	h := newHarness(t, config.RoleController)
	server, _, link := h.connected()
	resetsBefore := h.resets.Load()

	server.Close()
	h.waitState(Disconnected)
	testutil.Eventually(t, waitTimeout, link.isClosed, "link still open after signaling loss")
	if _, ok := h.manager.Channel(transport.ControlsLabel); ok {
		t.Fatal("control channel still published after teardown")
	}
	if h.resets.Load() == resetsBefore {
		t.Fatal("derived state not reset")
	}
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t, config.RoleController)
	_, messages, _ := h.connectController()

	for i := range 2 {
		h.clock.WaitForTimers(1)
		h.clock.Advance(30*time.Second - time.Millisecond)
		testutil.RequireNoReceive(t, messages, 20*time.Millisecond, "early ping %d", i)
		h.clock.Advance(time.Millisecond)
		ping := expect(t, messages, signaling.TypePing)
		if ping.From != "controller" {
			t.Fatalf("ping from = %q, want controller", ping.From)
		}
	}
}

// TestStatsSampling drives two samples through the manager: the first
// establishes a baseline, the second reports the windowed loss.
func TestStatsSampling(t *testing.T) {
	h := newHarness(t, config.RoleController)
	_, _, link := h.connected()

	link.setCounters(transport.Counters{PacketsLost: 10, PacketsReceived: 90})
	h.clock.WaitForTimers(2) // heartbeat and stats
	h.clock.Advance(time.Second)
	testutil.Eventually(t, waitTimeout, func() bool { return h.manager.Stats().PacketsReceived == 90 }, "first sample")
	if loss := h.manager.Stats().PacketLossPercent; loss != 0 {
		t.Fatalf("first sample loss = %v, want 0", loss)
	}

	link.setCounters(transport.Counters{PacketsLost: 14, PacketsReceived: 186, RoundTripSeconds: 0.0424})
	h.clock.WaitForTimers(2)
	h.clock.Advance(time.Second)
	testutil.Eventually(t, waitTimeout, func() bool { return h.manager.Stats().PacketsReceived == 186 }, "second sample")
	if loss := h.manager.Stats().PacketLossPercent; loss != 4 {
		t.Fatalf("loss = %v, want 4", loss)
	}
	if ping := h.manager.Ping(); ping != 42 {
		t.Fatalf("Ping() = %d, want 42", ping)
	}

	// Teardown clears stats and ping.
	h.manager.Disable()
	h.waitState(Idle)
	if stats := h.manager.Stats(); stats != (Stats{}) {
		t.Fatalf("stats after disable = %+v", stats)
	}
}

func TestICEDisconnectedRecovers(t *testing.T) {
	h := newHarness(t, config.RoleController)
	_, _, link := h.connected()

	link.handlers.State(webrtc.ICEConnectionStateDisconnected)
	h.waitState(Disconnected)
	if link.isClosed() {
		t.Fatal("link closed on a transient disconnect")
	}
	link.handlers.State(webrtc.ICEConnectionStateConnected)
	h.waitState(Connected)
}

func TestICEFailedReconnects(t *testing.T) {
	h := newHarness(t, config.RoleController)
	_, _, link := h.connected()

	link.handlers.State(webrtc.ICEConnectionStateFailed)
	h.waitState(Disconnected)
	testutil.Eventually(t, waitTimeout, link.isClosed, "waiting for link close")

	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for reconnection")
	testutil.RequireReceive(t, h.dialer.servers, waitTimeout, "waiting for socket")
	next := testutil.RequireReceive(t, h.links, waitTimeout, "waiting for new link")
	if next == link {
		t.Fatal("link reused after failure")
	}
}

// TestDisableIsFinal checks that nothing from the torn-down session
// fires afterwards.
func TestDisableIsFinal(t *testing.T) {
	h := newHarness(t, config.RoleController)
	_, messages, link := h.connected()

	link.handlers.Message(transport.TelemetryLabel, []byte(`{"sequence":1}`))
	testutil.RequireReceive(t, h.messages, waitTimeout, "waiting for telemetry")

	h.manager.Disable()
	h.waitState(Idle)
	testutil.Eventually(t, waitTimeout, link.isClosed, "link not closed")
	// The socket was closed: the server side drains and ends.
	for range messages {
	}
	testutil.Eventually(t, waitTimeout, func() bool { return h.clock.PendingCount() == 0 }, "timers still armed")

	// Late callbacks from the old link are ignored.
	link.handlers.State(webrtc.ICEConnectionStateConnected)
	link.handlers.Message(transport.TelemetryLabel, []byte(`{"sequence":2}`))
	testutil.RequireNoReceive(t, h.messages, 20*time.Millisecond, "telemetry after disable")
	h.clock.Advance(time.Minute)
	testutil.RequireNoReceive(t, h.dialer.dials, 20*time.Millisecond, "reconnected after disable")
	if got := h.manager.State(); got != Idle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestMachineAnswersOffers(t *testing.T) {
	h := newHarness(t, config.RoleMachine)
	h.manager.Enable()
	server := testutil.RequireReceive(t, h.dialer.servers, waitTimeout, "waiting for socket")
	messages := inbox(server)
	expect(t, messages, signaling.TypeRegister)
	testutil.RequireNoReceive(t, h.links, 20*time.Millisecond, "machine built a link before any offer")

	offer, _ := signaling.Description("controller", "machine",
		webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"})
	if err := server.Send(offer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	first := testutil.RequireReceive(t, h.links, waitTimeout, "waiting for link")
	answer := expect(t, messages, signaling.TypeAnswer)
	if answer.To != "controller" || answer.From != "machine" {
		t.Fatalf("answer addressed %s -> %s", answer.From, answer.To)
	}

	first.handlers.Candidate(webrtc.ICECandidateInit{Candidate: "candidate:9"})
	if got := expect(t, messages, signaling.TypeCandidate); got.To != "controller" {
		t.Fatalf("candidate to = %q", got.To)
	}
	first.handlers.State(webrtc.ICEConnectionStateConnected)
	h.waitState(Connected)

	// A second offer replaces the link.
	offer.From = "controller-2"
	if err := server.Send(offer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	second := testutil.RequireReceive(t, h.links, waitTimeout, "waiting for replacement link")
	if got := expect(t, messages, signaling.TypeAnswer); got.To != "controller-2" {
		t.Fatalf("second answer to = %q", got.To)
	}
	testutil.Eventually(t, waitTimeout, first.isClosed, "replaced link not closed")
	if second.isClosed() {
		t.Fatal("replacement link closed")
	}
	// The replaced link's callbacks no longer move the state.
	first.handlers.State(webrtc.ICEConnectionStateFailed)
	second.handlers.State(webrtc.ICEConnectionStateConnected)
	h.waitState(Connected)
}

// TestStalledSocketDoesNotBlockLoop holds the register write forever and
// checks that the session still answers Disable and Enable.
func TestStalledSocketDoesNotBlockLoop(t *testing.T) {
	h := newHarness(t, config.RoleController)
	h.dialer.stall.Store(true)

	h.manager.Enable()
	testutil.RequireReceive(t, h.dialer.dials, waitTimeout, "waiting for dial")
	stalled := testutil.RequireReceive(t, h.dialer.stalled, waitTimeout, "waiting for the stalled socket")
	testutil.RequireReceive(t, stalled.writing, waitTimeout, "waiting for the register write")
	testutil.RequireNoReceive(t, h.links, 20*time.Millisecond, "link built before registration")

	h.manager.Disable()
	h.waitState(Idle)
	testutil.RequireClosed(t, stalled.closed, waitTimeout, "stalled socket not closed")

	h.dialer.stall.Store(false)
	h.connectController()
}

// TestSlowLinkCloseDoesNotBlockLoop keeps a link's Close from returning
// and checks that teardown and the next attempt proceed without it.
func TestSlowLinkCloseDoesNotBlockLoop(t *testing.T) {
	h := newHarness(t, config.RoleController)
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	h.closeGate.Store(&gate)

	_, _, link := h.connected()
	h.closeGate.Store(nil)

	h.manager.Disable()
	h.waitState(Idle)
	if link.isClosed() {
		t.Fatal("link Close returned through the gate")
	}

	h.connected()
}
