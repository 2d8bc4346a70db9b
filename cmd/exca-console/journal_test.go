// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
)

func TestDumpJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.cbor.zst")
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	journal, err := logbook.CreateJournal(path, logbook.JournalHeader{Session: "3f1c", Started: started})
	if err != nil {
		t.Fatalf("CreateJournal: %v", err)
	}
	book := logbook.New(0)
	book.Attach(journal)
	book.Append(started.Add(time.Second), logbook.SeverityInfo, "registered with signaling server")
	book.Append(started.Add(2*time.Second), logbook.SeverityWarning, "peer link lost")
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	if err := dumpJournal(&out, path); err != nil {
		t.Fatalf("dumpJournal: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "session 3f1c") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[2], "warning") || !strings.HasSuffix(lines[2], "peer link lost") {
		t.Errorf("entry line = %q", lines[2])
	}
}

func TestDumpJournalMissingFile(t *testing.T) {
	var out bytes.Buffer
	if err := dumpJournal(&out, filepath.Join(t.TempDir(), "absent.cbor")); err == nil {
		t.Error("dumpJournal of a missing file succeeded")
	}
}
