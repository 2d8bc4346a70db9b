// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// ErrMalformed marks a received frame that was not a valid Message.
// The connection stays usable.
var ErrMalformed = errors.New("signaling: malformed message")

// Conn is one open signaling socket. Send may be called from any
// goroutine; Receive from one goroutine at a time.
type Conn interface {
	Send(Message) error
	// Receive blocks for the next message. Errors other than
	// ErrMalformed mean the socket is gone.
	Receive() (Message, error)
	Close() error
}

// Dialer opens signaling sockets.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// IsExpectedCloseError reports whether err is an ordinary end of a
// socket (EOF, local close, reset, or a normal WebSocket close) as
// opposed to a fault worth reporting.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
