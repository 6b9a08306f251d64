// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds how long Read waits for bytes on a serial port.
const DefaultReadTimeout = 100 * time.Millisecond

// Serial is a receiver attached to a UART, e.g. /dev/ttyS0 or /dev/ttyUSB0.
type Serial struct {
	path string

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
}

func OpenSerial(path string, baud int, readTimeout time.Duration) (s *Serial, err error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		err = fmt.Errorf("transport/OpenSerial(): %w", err)
		return
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if err = port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		err = fmt.Errorf("transport/OpenSerial(): %w", err)
		return
	}
	return newSerial(path, port), nil
}

func newSerial(path string, port io.ReadWriteCloser) *Serial {
	return &Serial{path: path, port: port}
}

func (s *Serial) String() string {
	return s.path
}

func (s *Serial) Read(p []byte) (n int, err error) {
	// not under mu, a blocked read must not hold up writers
	n, err = s.port.Read(p)
	if err != nil {
		err = fmt.Errorf("transport/Serial.Read: %w", err)
	}
	return
}

func (s *Serial) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	for n < len(p) {
		var c int
		c, err = s.port.Write(p[n:])
		n += c
		if err != nil {
			err = fmt.Errorf("transport/Serial.Write: %w", err)
			return
		}
	}
	return
}

func (s *Serial) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err = s.port.Close(); err != nil {
		err = fmt.Errorf("transport/Serial.Close: %w", err)
	}
	return
}
