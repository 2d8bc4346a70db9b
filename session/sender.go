// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/MagicSakuraD/exca-teleop/signaling"
)

// senderQueue bounds messages waiting for a slow socket. A socket that
// falls this far behind is treated as lost.
const senderQueue = 64

// sender writes one socket's outbound messages on its own goroutine so
// a stalled write never holds up the Manager loop. Results come back to
// the loop as events stamped with the sender's generation.
type sender struct {
	conn  signaling.Conn
	queue chan signaling.Message
	stop  chan struct{}
}

func (m *Manager) startSender(generation uint64, conn signaling.Conn) *sender {
	s := &sender{
		conn:  conn,
		queue: make(chan signaling.Message, senderQueue),
		stop:  make(chan struct{}),
	}
	go m.writeSignaling(generation, s)
	return s
}

func (m *Manager) writeSignaling(generation uint64, s *sender) {
	for {
		select {
		case <-s.stop:
			return
		case message := <-s.queue:
			if err := s.conn.Send(message); err != nil {
				m.postFrom(generation, event{kind: eventSendFailed, message: message, err: err})
				continue
			}
			if message.Type == signaling.TypeRegister {
				m.postFrom(generation, event{kind: eventRegistered})
			}
		}
	}
}

// enqueue hands message to the writer. It returns false when the queue
// is full.
func (s *sender) enqueue(message signaling.Message) bool {
	select {
	case s.queue <- message:
		return true
	default:
		return false
	}
}

// close stops the writer and closes the socket in the background.
// Queued messages are dropped.
func (s *sender) close() {
	close(s.stop)
	go s.conn.Close()
}
