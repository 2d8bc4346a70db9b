// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"log/slog"
	"sync"
	"time"
)

// Severity classifies an entry for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SeverityForLevel maps a slog level onto an entry severity.
func SeverityForLevel(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Entry is one line of the operator log.
type Entry struct {
	// Sequence increases by one per appended entry, starting at 1. It
	// keeps counting when old entries are evicted.
	Sequence uint64    `cbor:"seq" json:"seq"`
	Time     time.Time `cbor:"time" json:"time"`
	Message  string    `cbor:"message" json:"message"`
	Severity Severity  `cbor:"severity" json:"severity"`
}

// Sink receives every appended entry, in order. Sinks are called with
// the Book's lock held and must not call back into the Book.
type Sink interface {
	Record(Entry) error
}

// DefaultCapacity bounds how many entries a Book retains in memory.
const DefaultCapacity = 1000

// Book is an append-only log with bounded in-memory retention. Readers
// address entries by sequence number, so eviction never reorders or
// rewrites what a reader has already seen.
type Book struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     uint64
	sinks    []Sink
	sinkErr  error
}

// New returns a Book retaining at most capacity entries in memory
// (DefaultCapacity when capacity <= 0).
func New(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Book{capacity: capacity, next: 1}
}

// Attach adds a sink that receives every subsequent entry.
func (b *Book) Attach(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Append records an entry and returns it with its sequence number set.
func (b *Book) Append(at time.Time, severity Severity, message string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := Entry{Sequence: b.next, Time: at, Message: message, Severity: severity}
	b.next++
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, entry)
	for _, sink := range b.sinks {
		if err := sink.Record(entry); err != nil && b.sinkErr == nil {
			b.sinkErr = err
		}
	}
	return entry
}

// Entries returns a copy of the retained entries, oldest first.
func (b *Book) Entries() []Entry {
	return b.Since(0)
}

// Since returns the retained entries with a sequence number greater
// than after.
func (b *Book) Since(after uint64) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var result []Entry
	for _, entry := range b.entries {
		if entry.Sequence > after {
			result = append(result, entry)
		}
	}
	return result
}

// Tail returns up to n of the newest entries, oldest first.
func (b *Book) Tail(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := max(len(b.entries)-n, 0)
	result := make([]Entry, len(b.entries)-start)
	copy(result, b.entries[start:])
	return result
}

// SinkErr returns the first error any sink reported.
func (b *Book) SinkErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinkErr
}
