// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Session.ReconnectMaxAttempts != 10 {
		t.Errorf("ReconnectMaxAttempts = %d, want 10", cfg.Session.ReconnectMaxAttempts)
	}
	if cfg.Session.HeartbeatInterval.Duration != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.Session.HeartbeatInterval)
	}
	if cfg.Input.SampleInterval.Duration != 33*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 33ms", cfg.Input.SampleInterval)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("EXCA_TEST_HOST", "10.0.0.5")
	path := writeFile(t, "console.yaml", `
signaling_endpoint: ws://${EXCA_TEST_HOST}:8090/ws
local_identity: pit-console
target_peer: loader-7
microphone_enabled: true
ice_servers:
  - urls: ["stun:stun.example.net:3478"]
session:
  heartbeat_interval: 10s
input:
  source: serial
  serial_port: ${EXCA_TEST_PORT:-/dev/ttyACM0}
  deadzone: 0.05
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SignalingEndpoint != "ws://10.0.0.5:8090/ws" {
		t.Errorf("SignalingEndpoint = %q", cfg.SignalingEndpoint)
	}
	if cfg.Input.SerialPort != "/dev/ttyACM0" {
		t.Errorf("SerialPort = %q, want default expansion", cfg.Input.SerialPort)
	}
	if cfg.Session.HeartbeatInterval.Duration != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.Session.HeartbeatInterval)
	}
	if cfg.Session.StatsInterval.Duration != time.Second {
		t.Errorf("StatsInterval = %v, want default 1s", cfg.Session.StatsInterval)
	}
	if !cfg.MicrophoneEnabled || cfg.Input.Deadzone != 0.05 {
		t.Errorf("MicrophoneEnabled = %v, Deadzone = %v", cfg.MicrophoneEnabled, cfg.Input.Deadzone)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.net:3478" {
		t.Errorf("ICEServers = %+v", cfg.ICEServers)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeFile(t, "console.jsonc", `{
  // machine side of the link
  "role": "machine",
  "local_identity": "excavator",
  "watchdog": {"stale_after": "750ms"},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Role != RoleMachine || cfg.LocalIdentity != "excavator" {
		t.Errorf("Role = %q, LocalIdentity = %q", cfg.Role, cfg.LocalIdentity)
	}
	if cfg.Watchdog.StaleAfter.Duration != 750*time.Millisecond {
		t.Errorf("StaleAfter = %v, want 750ms", cfg.Watchdog.StaleAfter)
	}
}

func TestLoadWithoutEnvReturnsDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleController {
		t.Errorf("Role = %q, want controller", cfg.Role)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.SignalingEndpoint = "http://example"
	cfg.Role = "observer"
	cfg.Input.Deadzone = 1.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	for _, want := range []string{"signaling_endpoint", "role", "deadzone"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateDeadzoneRange(t *testing.T) {
	tests := []struct {
		deadzone float64
		valid    bool
	}{
		{deadzone: 0, valid: false},
		{deadzone: -0.1, valid: false},
		{deadzone: 0.05, valid: true},
		{deadzone: 0.1, valid: true},
		{deadzone: 1, valid: false},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Input.Deadzone = tt.deadzone
		err := cfg.Validate()
		if (err == nil) != tt.valid {
			t.Errorf("Validate() with deadzone %v = %v, want valid %v", tt.deadzone, err, tt.valid)
		}
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "bad.yaml", "session:\n  stats_interval: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted an unparseable duration")
	}
}
