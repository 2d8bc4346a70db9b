// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/lib/config"
)

// ICEServers converts configured STUN/TURN servers into pion entries.
// Servers without URLs are skipped. An empty result means host
// candidates only, which is enough for same-LAN operation.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	var result []webrtc.ICEServer
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
		}
		result = append(result, entry)
	}
	return result
}
