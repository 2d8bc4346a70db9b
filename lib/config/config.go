// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "EXCA_CONFIG"

// Role selects which side of the peer link this process plays.
type Role string

const (
	// RoleController is the operator console: it offers.
	RoleController Role = "controller"
	// RoleMachine is the machine side: it answers.
	RoleMachine Role = "machine"
)

// Config is the whole console configuration.
type Config struct {
	// SignalingEndpoint is the rendezvous server's WebSocket URL.
	SignalingEndpoint string `yaml:"signaling_endpoint" json:"signaling_endpoint"`

	// LocalIdentity is the name this process registers under.
	LocalIdentity string `yaml:"local_identity" json:"local_identity"`

	// TargetPeer is the registered name offers and candidates are
	// addressed to. The machine role answers whoever offered and
	// ignores this field.
	TargetPeer string `yaml:"target_peer" json:"target_peer"`

	Role Role `yaml:"role" json:"role"`

	// MicrophoneEnabled requests a send-capable audio track.
	MicrophoneEnabled bool `yaml:"microphone_enabled" json:"microphone_enabled"`

	// DeviceType overrides the device_type tag on outgoing control
	// vectors ("excavator" or "wheel_loader"). Empty derives it from
	// the classified input profile.
	DeviceType string `yaml:"device_type" json:"device_type"`

	ICEServers []ICEServer `yaml:"ice_servers" json:"ice_servers"`

	Session  SessionConfig  `yaml:"session" json:"session"`
	Input    InputConfig    `yaml:"input" json:"input"`
	Watchdog WatchdogConfig `yaml:"watchdog" json:"watchdog"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username" json:"username"`
	Credential string   `yaml:"credential" json:"credential"`
}

// SessionConfig holds peer session timing.
type SessionConfig struct {
	ReconnectBase        Duration `yaml:"reconnect_base" json:"reconnect_base"`
	ReconnectFactor      float64  `yaml:"reconnect_factor" json:"reconnect_factor"`
	ReconnectMaxDelay    Duration `yaml:"reconnect_max_delay" json:"reconnect_max_delay"`
	ReconnectMaxAttempts int      `yaml:"reconnect_max_attempts" json:"reconnect_max_attempts"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	StatsInterval        Duration `yaml:"stats_interval" json:"stats_interval"`
}

// InputConfig selects and tunes the controller source.
type InputConfig struct {
	// Source is "none" or "serial".
	Source     string `yaml:"source" json:"source"`
	SerialPort string `yaml:"serial_port" json:"serial_port"`
	SerialBaud int    `yaml:"serial_baud" json:"serial_baud"`

	// Deadzone is the magnitude below which an axis reads 0. Must be
	// in (0, 1); sensor noise means there is no "off" setting.
	Deadzone float64 `yaml:"deadzone" json:"deadzone"`

	// SampleInterval is the minimum spacing of executed samples.
	SampleInterval Duration `yaml:"sample_interval" json:"sample_interval"`

	// FrameInterval is the scheduler tick; most ticks are no-ops.
	FrameInterval Duration `yaml:"frame_interval" json:"frame_interval"`
}

// WatchdogConfig tunes telemetry staleness detection.
type WatchdogConfig struct {
	Interval   Duration `yaml:"interval" json:"interval"`
	StaleAfter Duration `yaml:"stale_after" json:"stale_after"`

	// FailsafeEstop asserts emergency_stop on outgoing commands while
	// telemetry is stale. Off unless the machine owner opts in.
	FailsafeEstop bool `yaml:"failsafe_estop" json:"failsafe_estop"`
}

// LogConfig configures the operator journal.
type LogConfig struct {
	// Journal is a file receiving every log entry as CBOR. A ".zst"
	// suffix compresses it.
	Journal string `yaml:"journal" json:"journal"`
}

// Duration is a time.Duration written as a string ("30s") in config
// files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used for anything the file leaves
// out.
func Default() *Config {
	return &Config{
		SignalingEndpoint: "ws://127.0.0.1:8090/ws",
		LocalIdentity:     "controller",
		TargetPeer:        "excavator",
		Role:              RoleController,
		Session: SessionConfig{
			ReconnectBase:        Duration{time.Second},
			ReconnectFactor:      1.5,
			ReconnectMaxDelay:    Duration{30 * time.Second},
			ReconnectMaxAttempts: 10,
			HeartbeatInterval:    Duration{30 * time.Second},
			StatsInterval:        Duration{time.Second},
		},
		Input: InputConfig{
			Source:         "none",
			SerialBaud:     115200,
			Deadzone:       0.1,
			SampleInterval: Duration{33 * time.Millisecond},
			FrameInterval:  Duration{time.Second / 60},
		},
		Watchdog: WatchdogConfig{
			Interval:   Duration{500 * time.Millisecond},
			StaleAfter: Duration{500 * time.Millisecond},
		},
	}
}

// Load reads the file named by EXCA_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, expands variables, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.decode(filepath.Ext(path), data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(extension string, data []byte) error {
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) expandVariables() {
	c.SignalingEndpoint = expandVars(c.SignalingEndpoint)
	c.LocalIdentity = expandVars(c.LocalIdentity)
	c.TargetPeer = expandVars(c.TargetPeer)
	c.Input.SerialPort = expandVars(c.Input.SerialPort)
	c.Log.Journal = expandVars(c.Log.Journal)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.SignalingEndpoint == "" {
		errs = append(errs, errors.New("signaling_endpoint is required"))
	} else if !strings.HasPrefix(c.SignalingEndpoint, "ws://") && !strings.HasPrefix(c.SignalingEndpoint, "wss://") {
		errs = append(errs, fmt.Errorf("signaling_endpoint %q must be a ws:// or wss:// URL", c.SignalingEndpoint))
	}
	if c.LocalIdentity == "" {
		errs = append(errs, errors.New("local_identity is required"))
	}
	switch c.Role {
	case RoleController:
		if c.TargetPeer == "" {
			errs = append(errs, errors.New("target_peer is required for the controller role"))
		}
	case RoleMachine:
	default:
		errs = append(errs, fmt.Errorf("role %q must be controller or machine", c.Role))
	}
	switch c.DeviceType {
	case "", "excavator", "wheel_loader":
	default:
		errs = append(errs, fmt.Errorf("device_type %q must be excavator or wheel_loader", c.DeviceType))
	}
	if c.Session.ReconnectBase.Duration <= 0 || c.Session.ReconnectMaxDelay.Duration < c.Session.ReconnectBase.Duration {
		errs = append(errs, errors.New("session.reconnect_base must be positive and not exceed reconnect_max_delay"))
	}
	if c.Session.ReconnectFactor < 1 {
		errs = append(errs, errors.New("session.reconnect_factor must be at least 1"))
	}
	if c.Session.ReconnectMaxAttempts < 0 {
		errs = append(errs, errors.New("session.reconnect_max_attempts must not be negative"))
	}
	if c.Session.HeartbeatInterval.Duration <= 0 || c.Session.StatsInterval.Duration <= 0 {
		errs = append(errs, errors.New("session.heartbeat_interval and session.stats_interval must be positive"))
	}
	switch c.Input.Source {
	case "none":
	case "serial":
		if c.Input.SerialPort == "" {
			errs = append(errs, errors.New("input.serial_port is required for the serial source"))
		}
	default:
		errs = append(errs, fmt.Errorf("input.source %q must be none or serial", c.Input.Source))
	}
	if c.Input.Deadzone <= 0 || c.Input.Deadzone >= 1 {
		errs = append(errs, fmt.Errorf("input.deadzone %v must be in (0, 1)", c.Input.Deadzone))
	}
	if c.Input.SampleInterval.Duration <= 0 || c.Input.FrameInterval.Duration <= 0 {
		errs = append(errs, errors.New("input.sample_interval and input.frame_interval must be positive"))
	}
	if c.Watchdog.Interval.Duration <= 0 || c.Watchdog.StaleAfter.Duration <= 0 {
		errs = append(errs, errors.New("watchdog.interval and watchdog.stale_after must be positive"))
	}
	return errors.Join(errs...)
}
