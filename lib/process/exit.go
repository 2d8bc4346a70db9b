// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// Fatal reports err and exits. A --help request exits 0 without an
// error line; anything else writes "error: err" to stderr and exits 1.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w the way Fatal does and returns the exit code.
func Report(w io.Writer, err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
