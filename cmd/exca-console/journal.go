// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
)

// dumpJournal prints a journal file as one line per entry.
func dumpJournal(w io.Writer, path string) error {
	header, entries, err := logbook.ReadJournal(path)
	if err != nil {
		return fmt.Errorf("reading journal %s: %w", path, err)
	}
	fmt.Fprintf(w, "# session %s started %s\n", header.Session, header.Started.Format(time.RFC3339))
	for _, entry := range entries {
		fmt.Fprintf(w, "%6d %s %-7s %s\n",
			entry.Sequence,
			entry.Time.Format("15:04:05.000"),
			entry.Severity,
			entry.Message,
		)
	}
	return nil
}
