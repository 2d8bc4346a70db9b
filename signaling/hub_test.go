// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MagicSakuraD/exca-teleop/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// receiveAsync delivers conn's messages on a channel so tests can
// bound their waits.
func receiveAsync(conn Conn) <-chan Message {
	messages := make(chan Message, 16)
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

func requireDrained(t *testing.T, messages <-chan Message, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-messages:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("connection still open after %v", timeout)
		}
	}
}

func registerAll(t *testing.T, hub *Hub, dialer Dialer, endpoint string, identities ...string) []Conn {
	t.Helper()
	conns := make([]Conn, len(identities))
	for i, identity := range identities {
		conn, err := dialer.Dial(context.Background(), endpoint)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := conn.Send(Register(identity)); err != nil {
			t.Fatalf("register %s: %v", identity, err)
		}
		conns[i] = conn
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return len(hub.Peers()) == len(identities)
	}, "waiting for registrations")
	return conns
}

func TestPipe(t *testing.T) {
	a, b := Pipe()
	if err := a.Send(Ping("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	a.Close()
	message, err := b.Receive()
	if err != nil || message.From != "a" {
		t.Fatalf("queued message after close = %+v, %v", message, err)
	}
	if _, err := b.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("Receive after drain = %v, want EOF", err)
	}
	if err := b.Send(Ping("b")); err == nil {
		t.Fatal("Send on closed pipe succeeded")
	}
}

func TestHubForwardsAndRewritesFrom(t *testing.T) {
	hub := NewHub(testLogger())
	conns := registerAll(t, hub, hub, "", "controller", "excavator")
	controller, machine := conns[0], conns[1]
	inbox := receiveAsync(machine)

	spoofed := Message{Type: TypeCandidate, From: "someone-else", To: "excavator", Payload: []byte(`{"candidate":""}`)}
	if err := controller.Send(spoofed); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, inbox, 5*time.Second, "waiting for forwarded candidate")
	if got.Type != TypeCandidate || got.From != "controller" {
		t.Fatalf("forwarded = %+v, want candidate from controller", got)
	}

	// Unknown recipients are dropped without disturbing the sender.
	if err := controller.Send(Message{Type: TypeOffer, To: "loader-9"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := hub.Peers(); strings.Join(got, ",") != "controller,excavator" {
		t.Fatalf("Peers() = %v", got)
	}
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(testLogger())
	conn := registerAll(t, hub, hub, "", "controller")[0]
	inbox := receiveAsync(conn)
	if err := conn.Send(Ping("controller")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := testutil.RequireReceive(t, inbox, 5*time.Second, "waiting for pong"); got.Type != TypePong {
		t.Fatalf("reply = %+v, want pong", got)
	}
}

func TestHubReplacesReconnectingPeer(t *testing.T) {
	hub := NewHub(testLogger())
	first := registerAll(t, hub, hub, "", "controller")[0]
	firstInbox := receiveAsync(first)

	second, err := hub.Dial(context.Background(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer second.Close()
	if err := second.Send(Register("controller")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The stale socket is closed by the hub.
	requireDrained(t, firstInbox, 5*time.Second)
	if got := hub.Peers(); len(got) != 1 || got[0] != "controller" {
		t.Fatalf("Peers() = %v", got)
	}
}

func TestWebSocketThroughHub(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")

	conns := registerAll(t, hub, WebSocketDialer{}, endpoint, "controller", "excavator")
	inbox := receiveAsync(conns[1])
	if err := conns[0].Send(Message{Type: TypeAnswer, To: "excavator", Payload: []byte(`{"type":"answer","sdp":"v=0"}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, inbox, 5*time.Second, "waiting for answer over websocket")
	description, err := got.SessionDescription()
	if err != nil || description.SDP != "v=0" || got.From != "controller" {
		t.Fatalf("received %+v (%v)", got, err)
	}

	conns[1].Close()
	testutil.Eventually(t, 5*time.Second, func() bool { return len(hub.Peers()) == 1 }, "waiting for unregister")
}

func TestWebSocketDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := (WebSocketDialer{}).Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("Dial to a closed port succeeded")
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	if IsExpectedCloseError(nil) {
		t.Error("nil is not a close error")
	}
	if !IsExpectedCloseError(io.EOF) || !IsExpectedCloseError(io.ErrClosedPipe) {
		t.Error("EOF and closed pipe are expected closes")
	}
	if IsExpectedCloseError(errors.New("tls: bad certificate")) {
		t.Error("arbitrary error classified as expected close")
	}
}

func TestHubCloseDisconnectsPeers(t *testing.T) {
	hub := NewHub(testLogger())
	conns := registerAll(t, hub, hub, "", "controller", "excavator")
	inboxes := []<-chan Message{receiveAsync(conns[0]), receiveAsync(conns[1])}

	hub.Close()
	for _, inbox := range inboxes {
		requireDrained(t, inbox, 5*time.Second)
	}
	if got := hub.Peers(); len(got) != 0 {
		t.Errorf("Peers() after Close = %v", got)
	}
}
