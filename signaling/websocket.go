// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single frame write so a stalled server
	// cannot wedge the session owner.
	writeTimeout = 5 * time.Second

	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
)

// WebSocketDialer dials signaling servers over WebSocket.
type WebSocketDialer struct {
	// Header is sent with the upgrade request.
	Header http.Header
}

// Dial connects to endpoint (ws:// or wss://).
func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	socket, response, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing %s: %w (HTTP %d)", endpoint, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return newWebSocketConn(socket), nil
}

// webSocketConn adapts a gorilla connection to Conn. gorilla allows
// one concurrent writer, so writes are serialized.
type webSocketConn struct {
	socket  *websocket.Conn
	writeMu sync.Mutex
}

func newWebSocketConn(socket *websocket.Conn) *webSocketConn {
	socket.SetReadLimit(maxMessageSize)
	return &webSocketConn{socket: socket}
}

func (c *webSocketConn) Send(message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", message.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.socket.WriteMessage(websocket.TextMessage, data)
}

func (c *webSocketConn) Receive() (Message, error) {
	kind, data, err := c.socket.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var message Message
	if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
		return Message{}, fmt.Errorf("%w: frame type %d", ErrMalformed, kind)
	}
	if err := json.Unmarshal(data, &message); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return message, nil
}

// Close sends a close frame (best effort) and closes the socket.
func (c *webSocketConn) Close() error {
	c.writeMu.Lock()
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.socket.Close()
}
