// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"path/filepath"
	"testing"
	"time"
)

func TestJournalRoundTrip(t *testing.T) {
	for _, name := range []string{"console.journal", "console.journal.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			header := JournalHeader{Session: "7d1c", Started: epoch}
			journal, err := CreateJournal(path, header)
			if err != nil {
				t.Fatalf("CreateJournal: %v", err)
			}

			book := New(0)
			book.Attach(journal)
			book.Append(epoch.Add(time.Second), SeverityInfo, "signaling connected")
			book.Append(epoch.Add(2*time.Second), SeverityError, "ICE failed")
			if err := journal.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := book.SinkErr(); err != nil {
				t.Fatalf("SinkErr() = %v", err)
			}

			gotHeader, entries, err := ReadJournal(path)
			if err != nil {
				t.Fatalf("ReadJournal: %v", err)
			}
			if gotHeader.Session != "7d1c" || !gotHeader.Started.Equal(epoch) {
				t.Errorf("header = %+v", gotHeader)
			}
			if len(entries) != 2 {
				t.Fatalf("read %d entries, want 2", len(entries))
			}
			if entries[1].Message != "ICE failed" || entries[1].Severity != SeverityError || entries[1].Sequence != 2 {
				t.Errorf("entry 1 = %+v", entries[1])
			}
			if !entries[0].Time.Equal(epoch.Add(time.Second)) {
				t.Errorf("entry 0 time = %v", entries[0].Time)
			}
		})
	}
}
