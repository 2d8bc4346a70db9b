// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the console configuration file.
//
// The file is named by the --config flag or the EXCA_CONFIG
// environment variable; there is no search path. Files ending in .json
// or .jsonc are JSON with comments, anything else is YAML. Values
// absent from the file keep the defaults from Default().
//
// A minimal controller configuration:
//
//	signaling_endpoint: ws://${SIGNAL_HOST:-127.0.0.1}:8090/ws
//	local_identity: controller
//	target_peer: excavator
//	input:
//	  source: serial
//	  serial_port: /dev/ttyACM0
package config
