// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultDDCAddr is the 7-bit I2C address u-blox receivers answer on.
	DefaultDDCAddr = 0x42

	// DDCChunk is the largest single I2C transaction. Longer writes are
	// split and longer reads are truncated.
	DDCChunk = 32

	regBytesAvailable = 0xFD
	regStream         = 0xFF
)

// DDC is a u-blox receiver on an I2C bus (the "display data channel").
// Register 0xFD holds the big-endian number of bytes waiting and register
// 0xFF streams them.
type DDC struct {
	mu     sync.Mutex
	dev    i2c.Dev
	closed bool
}

func NewDDC(bus i2c.Bus, addr uint16) *DDC {
	if addr == 0 {
		addr = DefaultDDCAddr
	}
	return &DDC{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

func (d *DDC) String() string {
	return d.dev.String()
}

// Available returns the number of bytes the receiver has buffered.
func (d *DDC) Available() (n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available()
}

func (d *DDC) available() (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	var b [2]byte
	if err := d.dev.Tx([]byte{regBytesAvailable}, b[:]); err != nil {
		return 0, fmt.Errorf("transport/DDC.Available: %w", err)
	}
	return int(binary.BigEndian.Uint16(b[:])), nil
}

// Read reads at most DDCChunk of the bytes currently waiting. It returns 0,
// nil if the receiver has nothing buffered.
func (d *DDC) Read(p []byte) (n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err = d.available()
	if err != nil || n == 0 {
		return 0, err
	}
	n = min(n, DDCChunk, len(p))
	if n == 0 {
		return 0, nil
	}
	if err = d.dev.Tx([]byte{regStream}, p[:n]); err != nil {
		return 0, fmt.Errorf("transport/DDC.Read: %w", err)
	}
	return n, nil
}

// Write sends p in DDCChunk sized transactions. The lock is held for the
// whole of p so a command is never interleaved with another writer's.
func (d *DDC) Write(p []byte) (n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	for n < len(p) {
		end := min(n+DDCChunk, len(p))
		if err = d.dev.Tx(p[n:end], nil); err != nil {
			err = fmt.Errorf("transport/DDC.Write: %w", err)
			return
		}
		n = end
	}
	return
}

// Close marks the transport closed. The bus belongs to the caller and is
// left open.
func (d *DDC) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
