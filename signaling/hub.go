// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// HubIdentity is the from field of messages the hub itself sends.
const HubIdentity = "signal"

// Hub is a rendezvous server. Peers register a name; addressed
// messages are forwarded to the peer registered under their to field,
// with from rewritten to the sender's registered name. Messages for
// unknown peers are dropped.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[string]Conn
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Consoles are served from arbitrary origins on the site
			// network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[string]Conn),
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until
// the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.Serve(newWebSocketConn(socket))
}

// Dial implements Dialer by serving one end of an in-memory Pipe.
// The endpoint is ignored.
func (h *Hub) Dial(ctx context.Context, _ string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := Pipe()
	go h.Serve(server)
	return client, nil
}

// Serve handles one peer connection until it closes.
func (h *Hub) Serve(conn Conn) {
	identity := ""
	defer func() {
		h.unregister(identity, conn)
		conn.Close()
	}()

	for {
		message, err := conn.Receive()
		if errors.Is(err, ErrMalformed) {
			h.logger.Debug("dropping malformed message", "peer", identity, "error", err)
			continue
		}
		if err != nil {
			if !IsExpectedCloseError(err) {
				h.logger.Warn("peer connection failed", "peer", identity, "error", err)
			}
			return
		}

		switch message.Type {
		case TypeRegister:
			if message.Identity == "" {
				h.logger.Warn("register without identity")
				continue
			}
			h.unregister(identity, conn)
			identity = message.Identity
			h.register(identity, conn)
		case TypePing:
			if err := conn.Send(Pong(HubIdentity)); err != nil {
				return
			}
		case TypePong:
		default:
			if identity == "" {
				h.logger.Warn("message from unregistered peer dropped", "type", message.Type)
				continue
			}
			message.From = identity
			h.forward(message)
		}
	}
}

func (h *Hub) register(identity string, conn Conn) {
	h.mu.Lock()
	previous := h.peers[identity]
	h.peers[identity] = conn
	h.mu.Unlock()
	if previous != nil && previous != conn {
		// A reconnecting peer replaces its stale socket.
		previous.Close()
	}
	h.logger.Info("peer registered", "identity", identity)
}

func (h *Hub) unregister(identity string, conn Conn) {
	if identity == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[identity] == conn {
		delete(h.peers, identity)
		h.logger.Info("peer left", "identity", identity)
	}
}

func (h *Hub) forward(message Message) {
	h.mu.Lock()
	target := h.peers[message.To]
	h.mu.Unlock()
	if target == nil {
		h.logger.Debug("no such peer", "to", message.To, "type", message.Type, "from", message.From)
		return
	}
	if err := target.Send(message); err != nil {
		h.logger.Debug("forward failed", "to", message.To, "type", message.Type, "error", err)
	}
}

// Peers returns the registered identities in sorted order.
func (h *Hub) Peers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.peers))
	for name := range h.peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every registered peer. Peers that have not
// registered yet are left to their own read deadlines.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]Conn)
	h.mu.Unlock()
	for _, conn := range peers {
		conn.Close()
	}
}
