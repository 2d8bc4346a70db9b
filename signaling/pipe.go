// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"io"
	"sync"
)

const pipeBuffer = 64

// Pipe returns two connected in-memory Conns. Closing either end
// closes both; a closed end still delivers messages already queued.
func Pipe() (Conn, Conn) {
	shared := &pipeState{closed: make(chan struct{})}
	aToB := make(chan Message, pipeBuffer)
	bToA := make(chan Message, pipeBuffer)
	return &pipeEnd{state: shared, inbox: bToA, outbox: aToB},
		&pipeEnd{state: shared, inbox: aToB, outbox: bToA}
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeEnd struct {
	state  *pipeState
	inbox  <-chan Message
	outbox chan<- Message
}

func (p *pipeEnd) Send(message Message) error {
	select {
	case <-p.state.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.outbox <- message:
		return nil
	case <-p.state.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipeEnd) Receive() (Message, error) {
	select {
	case message := <-p.inbox:
		return message, nil
	case <-p.state.closed:
		select {
		case message := <-p.inbox:
			return message, nil
		default:
			return Message{}, io.EOF
		}
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.closed) })
	return nil
}
