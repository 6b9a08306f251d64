// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

import (
	"encoding/binary"
	"math"
)

const (
	Sync1 byte = 0xB5
	Sync2 byte = 0x62

	classOffset = 2
	idOffset    = 3
	lenOffset   = 4
	dataOffset  = 6

	// FrameOverhead is the number of bytes in a frame that are not payload:
	// two sync bytes, class, id, two length bytes and two checksum bytes.
	FrameOverhead = 8
)

// Message is a single UBX frame held in a fixed capacity buffer. The same type
// is used for frames being received by a Decoder and for commands being built
// for transmission.
//
// Payload offsets passed to the typed accessors are relative to the start of
// the payload, and multi-byte values are little endian as on the wire.
type Message struct {
	buf        []byte
	payloadLen int
}

// NewMessage allocates a message that can hold up to payloadCap payload bytes.
func NewMessage(payloadCap int) *Message {
	if payloadCap < 0 {
		payloadCap = 0
	}
	return &Message{buf: make([]byte, payloadCap+FrameOverhead)}
}

// NewCommand allocates a message for the given class and id with room for
// payloadCap payload bytes.
func NewCommand(class, id uint8, payloadCap int) *Message {
	m := NewMessage(payloadCap)
	m.SetClassID(class, id)
	return m
}

// Class returns the message class.
func (m *Message) Class() uint8 { return m.buf[classOffset] }

// ID returns the message id within its class.
func (m *Message) ID() uint8 { return m.buf[idOffset] }

func (m *Message) SetClassID(class, id uint8) {
	m.buf[classOffset] = class
	m.buf[idOffset] = id
}

// PayloadLen returns the number of payload bytes currently in the message.
func (m *Message) PayloadLen() int { return m.payloadLen }

// PayloadCap returns the largest payload the message can hold.
func (m *Message) PayloadCap() int { return len(m.buf) - FrameOverhead }

// Payload returns the payload bytes. The slice aliases the message buffer.
func (m *Message) Payload() []byte {
	return m.buf[dataOffset : dataOffset+m.payloadLen]
}

// Bytes returns the whole frame, sync bytes through checksum. UpdateChecksum
// must have been called on commands before the result is transmitted.
func (m *Message) Bytes() []byte {
	return m.buf[:m.payloadLen+FrameOverhead]
}

// Reset empties the payload so the message can be rebuilt.
func (m *Message) Reset() {
	m.payloadLen = 0
}

// UpdateChecksum writes the sync bytes, the length field and the two checksum
// bytes. Call it once after the payload is complete and before sending.
func (m *Message) UpdateChecksum() {
	m.buf[0] = Sync1
	m.buf[1] = Sync2
	binary.LittleEndian.PutUint16(m.buf[lenOffset:], uint16(m.payloadLen))

	ckOffset := dataOffset + m.payloadLen
	m.buf[ckOffset], m.buf[ckOffset+1] = m.checksum()
}

func (m *Message) checksum() (byte, byte) {
	return Checksum(m.buf[classOffset : dataOffset+m.payloadLen])
}

func (m *Message) checksumOK() bool {
	ckA, ckB := m.checksum()
	ckOffset := dataOffset + m.payloadLen
	return m.buf[ckOffset] == ckA && m.buf[ckOffset+1] == ckB
}

// Clone copies a completed frame into a new message sized to its payload. The
// decoder reuses its buffer for the next frame, so handlers that need a
// message after they return must clone it.
func (m *Message) Clone() *Message {
	c := NewMessage(m.payloadLen)
	copy(c.buf, m.buf[:m.payloadLen+FrameOverhead])
	c.payloadLen = m.payloadLen
	return c
}

// GetData copies len(dst) payload bytes starting at offset into dst. It fails
// if the range is not inside the current payload.
func (m *Message) GetData(offset int, dst []byte) bool {
	if offset < 0 || offset+len(dst) > m.payloadLen {
		return false
	}
	copy(dst, m.buf[dataOffset+offset:])
	return true
}

// SetData writes src into the payload at offset, growing the payload if the
// write extends past its end. It fails without writing anything if the result
// would not fit in the buffer.
func (m *Message) SetData(offset int, src []byte) bool {
	if offset < 0 || offset+len(src) > m.PayloadCap() {
		return false
	}
	if offset+len(src) > m.payloadLen {
		m.payloadLen = offset + len(src)
	}
	copy(m.buf[dataOffset+offset:], src)
	return true
}

// AppendData adds src to the end of the payload.
func (m *Message) AppendData(src []byte) bool {
	return m.SetData(m.payloadLen, src)
}

// FillData appends n copies of value to the payload.
func (m *Message) FillData(value byte, n int) bool {
	if n < 0 || m.payloadLen+n > m.PayloadCap() {
		return false
	}
	start := dataOffset + m.payloadLen
	for i := start; i < start+n; i++ {
		m.buf[i] = value
	}
	m.payloadLen += n
	return true
}

func (m *Message) GetU1(offset int) (uint8, bool) {
	var b [1]byte
	ok := m.GetData(offset, b[:])
	return b[0], ok
}

func (m *Message) GetU2(offset int) (uint16, bool) {
	var b [2]byte
	ok := m.GetData(offset, b[:])
	return binary.LittleEndian.Uint16(b[:]), ok
}

func (m *Message) GetU4(offset int) (uint32, bool) {
	var b [4]byte
	ok := m.GetData(offset, b[:])
	return binary.LittleEndian.Uint32(b[:]), ok
}

func (m *Message) GetR4(offset int) (float32, bool) {
	v, ok := m.GetU4(offset)
	return math.Float32frombits(v), ok
}

func (m *Message) GetR8(offset int) (float64, bool) {
	var b [8]byte
	ok := m.GetData(offset, b[:])
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), ok
}

func (m *Message) SetU1(offset int, v uint8) bool {
	return m.SetData(offset, []byte{v})
}

func (m *Message) SetU2(offset int, v uint16) bool {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return m.SetData(offset, b[:])
}

func (m *Message) SetU4(offset int, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.SetData(offset, b[:])
}

func (m *Message) SetR4(offset int, v float32) bool {
	return m.SetU4(offset, math.Float32bits(v))
}

func (m *Message) SetR8(offset int, v float64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return m.SetData(offset, b[:])
}

func (m *Message) AppendU1(v uint8) bool   { return m.SetU1(m.payloadLen, v) }
func (m *Message) AppendU2(v uint16) bool  { return m.SetU2(m.payloadLen, v) }
func (m *Message) AppendU4(v uint32) bool  { return m.SetU4(m.payloadLen, v) }
func (m *Message) AppendR4(v float32) bool { return m.SetR4(m.payloadLen, v) }
func (m *Message) AppendR8(v float64) bool { return m.SetR8(m.payloadLen, v) }
