// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/MagicSakuraD/exca-teleop/lib/codec"
)

// JournalHeader is the first record of every journal file.
type JournalHeader struct {
	Session string    `cbor:"session"`
	Started time.Time `cbor:"started"`
}

// Journal appends entries to a file as a CBOR sequence: one
// JournalHeader followed by one Entry per record. Paths ending in
// ".zst" are zstd-compressed.
type Journal struct {
	file    *os.File
	zstd    *zstd.Encoder
	buffer  *bufio.Writer
	encoder *codec.Encoder
}

// CreateJournal creates (or truncates) path and writes the header.
func CreateJournal(path string, header JournalHeader) (*Journal, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	journal := &Journal{file: file}
	var out io.Writer = file
	if strings.HasSuffix(path, ".zst") {
		journal.zstd, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating journal compressor: %w", err)
		}
		out = journal.zstd
	}
	journal.buffer = bufio.NewWriter(out)
	journal.encoder = codec.NewEncoder(journal.buffer)
	if err := journal.encoder.Encode(header); err != nil {
		journal.Close()
		return nil, fmt.Errorf("writing journal header: %w", err)
	}
	return journal, nil
}

// Record implements Sink. Entries are flushed to the file one by one
// so a crash loses at most the compressor's pending block.
func (j *Journal) Record(entry Entry) error {
	if err := j.encoder.Encode(entry); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return j.buffer.Flush()
}

// Close flushes and closes the file.
func (j *Journal) Close() error {
	var errs []error
	errs = append(errs, j.buffer.Flush())
	if j.zstd != nil {
		errs = append(errs, j.zstd.Close())
	}
	errs = append(errs, j.file.Close())
	return errors.Join(errs...)
}

// ReadJournal decodes a journal written by Journal.
func ReadJournal(path string) (JournalHeader, []Entry, error) {
	var header JournalHeader
	file, err := os.Open(path)
	if err != nil {
		return header, nil, err
	}
	defer file.Close()

	var in io.Reader = bufio.NewReader(file)
	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(in)
		if err != nil {
			return header, nil, fmt.Errorf("opening journal decompressor: %w", err)
		}
		defer decoder.Close()
		in = decoder
	}

	decoder := codec.NewDecoder(in)
	if err := decoder.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("reading journal header: %w", err)
	}
	var entries []Entry
	for {
		var entry Entry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return header, entries, nil
		}
		if err != nil {
			// A truncated tail is what a crash leaves behind; keep
			// everything before it.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return header, entries, nil
			}
			return header, entries, fmt.Errorf("reading journal entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}
