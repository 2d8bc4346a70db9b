// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/MagicSakuraD/exca-teleop/lib/clock"
)

const (
	// maxReportSize bounds one bridge report. Longer lines are skipped.
	maxReportSize = 64 * 1024

	// DefaultReportTimeout is how long the last report stays valid:
	// three sample intervals.
	DefaultReportTimeout = 3 * DefaultSampleInterval

	defaultReopenBase = 250 * time.Millisecond
	defaultReopenMax  = 5 * time.Second
)

// errNoReports marks a bridge that is connected but has stopped
// writing.
var errNoReports = errors.New("no report from controller bridge")

// bridgeLine is one report from a controller bridge: every connected
// pad, newline-terminated JSON.
type bridgeLine struct {
	Pads []Pad `json:"pads"`
}

// LineSourceConfig configures a LineSource.
type LineSourceConfig struct {
	// Open connects to the bridge. It is called again, with backoff,
	// every time the stream fails. Required.
	Open func() (io.ReadCloser, error)

	Clock  clock.Clock
	Logger *slog.Logger

	// ReportTimeout defaults to DefaultReportTimeout.
	ReportTimeout time.Duration

	// ReopenBase and ReopenMax bound the doubling delay between
	// reconnection attempts. Defaults 250ms and 5s.
	ReopenBase time.Duration
	ReopenMax  time.Duration
}

// LineSource reads newline-delimited JSON pad reports from a stream
// and serves the latest one. A controller bridge (a microcontroller
// that owns the USB controllers) writes these reports to a serial
// port.
//
// A report is only served while it is younger than ReportTimeout; a
// silent bridge reads as ErrNoDevice rather than as its last report. A
// failed stream also reads as ErrNoDevice until the stream has been
// reopened and the next good report arrives.
type LineSource struct {
	open          func() (io.ReadCloser, error)
	clock         clock.Clock
	logger        *slog.Logger
	reportTimeout time.Duration
	reopenBase    time.Duration
	reopenMax     time.Duration

	mu       sync.Mutex
	stream   io.Closer
	pads     []Pad
	received time.Time
	err      error
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// OpenSerial opens a controller bridge on a serial port. The first
// open happens here so a wrong port fails at startup; later reopens
// happen in the background.
func OpenSerial(port string, baud int, clk clock.Clock, logger *slog.Logger) (*LineSource, error) {
	mode := &serial.Mode{BaudRate: baud}
	first, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening controller bridge %s: %w", port, err)
	}
	logger.Info("controller bridge open", "port", port, "baud", baud)

	var pending io.ReadCloser = first
	return NewLineSource(LineSourceConfig{
		Open: func() (io.ReadCloser, error) {
			if pending != nil {
				stream := pending
				pending = nil
				return stream, nil
			}
			stream, err := serial.Open(port, mode)
			if err != nil {
				return nil, fmt.Errorf("reopening controller bridge %s: %w", port, err)
			}
			logger.Info("controller bridge reopened", "port", port)
			return stream, nil
		},
		Clock:  clk,
		Logger: logger,
	})
}

// ListSerialPorts returns the serial ports present on this host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// NewLineSource starts connecting and reading in the background.
func NewLineSource(config LineSourceConfig) (*LineSource, error) {
	if config.Open == nil {
		return nil, errors.New("input: line source requires Open")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReportTimeout <= 0 {
		config.ReportTimeout = DefaultReportTimeout
	}
	if config.ReopenBase <= 0 {
		config.ReopenBase = defaultReopenBase
	}
	if config.ReopenMax < config.ReopenBase {
		config.ReopenMax = max(defaultReopenMax, config.ReopenBase)
	}
	source := &LineSource{
		open:          config.Open,
		clock:         config.Clock,
		logger:        config.Logger,
		reportTimeout: config.ReportTimeout,
		reopenBase:    config.ReopenBase,
		reopenMax:     config.ReopenMax,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go source.run()
	return source, nil
}

// run keeps a stream open and read until Close.
func (s *LineSource) run() {
	defer close(s.done)
	delay := s.reopenBase
	for {
		stream, err := s.open()
		if err == nil {
			if !s.attach(stream) {
				stream.Close()
				return
			}
			var good bool
			good, err = s.read(stream)
			stream.Close()
			if good {
				delay = s.reopenBase
			}
		}
		if s.stopping() {
			return
		}
		if err == nil {
			err = io.EOF
		}
		s.fail(err)
		s.logger.Warn("controller bridge lost, retrying", "error", err, "retry_in", delay)

		select {
		case <-s.stop:
			return
		case <-s.clock.After(delay):
		}
		delay = min(delay*2, s.reopenMax)
	}
}

// attach records stream as current so Close can interrupt its reads.
// It returns false when the source is already closed.
func (s *LineSource) attach(stream io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.stream = stream
	return true
}

func (s *LineSource) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// read consumes reports until the stream fails. It reports whether at
// least one good report arrived.
func (s *LineSource) read(stream io.Reader) (bool, error) {
	reader := bufio.NewReaderSize(stream, maxReportSize)
	good := false
	for {
		line, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			s.logger.Warn("skipping oversized bridge report", "limit", maxReportSize)
			if err := skipLine(reader); err != nil {
				return good, err
			}
			continue
		}
		if err != nil {
			return good, err
		}
		if s.accept(bytes.TrimSpace(line)) {
			good = true
		}
	}
}

// skipLine discards input through the next newline.
func skipLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func (s *LineSource) accept(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	var report bridgeLine
	if err := json.Unmarshal(line, &report); err != nil {
		s.logger.Debug("discarding malformed bridge report", "error", err)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pads = report.Pads
	s.received = s.clock.Now()
	s.err = nil
	return true
}

func (s *LineSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.pads = nil
	s.err = fmt.Errorf("%w: %w", ErrNoDevice, err)
}

// Poll returns the latest report. It returns an error wrapping
// ErrNoDevice while the stream is down or once the latest report is
// older than the report timeout. Before the first report it returns no
// pads.
func (s *LineSource) Poll() ([]Pad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.received.IsZero() {
		return nil, nil
	}
	if age := s.clock.Since(s.received); age > s.reportTimeout {
		return nil, fmt.Errorf("%w: %w for %v", ErrNoDevice, errNoReports, age)
	}
	return clonePads(s.pads), nil
}

// Close stops reconnecting, closes the current stream and waits for
// the reader to stop.
func (s *LineSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	stream := s.stream
	s.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.Close()
	}
	<-s.done
	return err
}
