// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling carries peer-link setup messages between the
// console and the machine through a rendezvous server.
//
// Every message is a JSON object {type, from, to, payload}:
//
//	register   {identity}                 announce this peer's name
//	offer      payload: session description
//	answer     payload: session description
//	candidate  payload: one ICE candidate
//	ping/pong  from only                  keep the socket alive
//
// Dial opens a WebSocket client Conn. Hub is the rendezvous server:
// it records which Conn registered each identity and forwards every
// addressed message to its recipient. Hub also implements Dialer
// in-process, which is how tests connect peers without a network.
package signaling
