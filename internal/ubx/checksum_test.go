// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

import (
	"testing"
)

func TestChecksum(t *testing.T) {
	tables := []struct {
		in  []byte
		ckA byte
		ckB byte
	}{
		{[]byte{0x06, 0x13, 0x04, 0x00, 0x00, 0x00, 0xF0, 0x7D}, 0x8A, 0x2A},
		{[]byte{0x06, 0x13, 0x04, 0x00, 0x01, 0x00, 0xF0, 0x7D}, 0x8B, 0x2E},
		{[]byte{0x06, 0x31, 0x00, 0x00}, 0x37, 0xAB},
		{[]byte{}, 0x00, 0x00},
	}

	for _, table := range tables {
		ckA, ckB := Checksum(table.in)
		if ckA != table.ckA || ckB != table.ckB {
			t.Errorf("% X expected: %02X %02X, got: %02X %02X", table.in, table.ckA, table.ckB, ckA, ckB)
		}
	}
}

func TestAntennaFrames(t *testing.T) {
	tables := []struct {
		external bool
		expected []byte
	}{
		{false, []byte{0xB5, 0x62, 0x06, 0x13, 0x04, 0x00, 0x00, 0x00, 0xF0, 0x7D, 0x8A, 0x2A}},
		{true, []byte{0xB5, 0x62, 0x06, 0x13, 0x04, 0x00, 0x01, 0x00, 0xF0, 0x7D, 0x8B, 0x2E}},
	}

	for _, table := range tables {
		out := Antenna(table.external).Bytes()
		if string(out) != string(table.expected) {
			t.Errorf("external=%v expected: % X, got: % X", table.external, table.expected, out)
		}
	}
}

func TestBuiltCommandMatchesFixedBytes(t *testing.T) {
	m := NewCommand(0x06, 0x13, 4)
	for _, b := range []byte{0x00, 0x00, 0xF0, 0x7D} {
		if !m.AppendU1(b) {
			t.Fatalf("append %02X failed", b)
		}
	}
	m.UpdateChecksum()

	expected := []byte{0xB5, 0x62, 0x06, 0x13, 0x04, 0x00, 0x00, 0x00, 0xF0, 0x7D, 0x8A, 0x2A}
	if string(m.Bytes()) != string(expected) {
		t.Errorf("expected: % X, got: % X", expected, m.Bytes())
	}
}
