// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultPayloadCap is the decoder buffer size used when none is given. It is
// large enough for MON-HW, NAV-PVT and the CFG messages used by this package.
const DefaultPayloadCap = 1024

// Any matches every class or every id in a handler filter.
const Any uint8 = 0xFF

type decodeState int

const (
	seekingSync decodeState = iota
	readingHeader
	readingBody
)

// Lifetime says whether a handler stays registered after it has been called.
type Lifetime int

const (
	Persistent Lifetime = iota
	// Once handlers are removed by the decoder after their first match.
	Once
)

// HandlerFunc receives a validated message. The message belongs to the
// decoder and is only valid until the handler returns; use Message.Clone to
// keep it.
type HandlerFunc func(m *Message)

// Handler is a registered callback, returned so it can be removed later.
type Handler struct {
	class    uint8
	id       uint8
	fn       HandlerFunc
	lifetime Lifetime
}

func (h *Handler) matches(class, id uint8) bool {
	return (h.class == Any || h.class == class) && (h.id == Any || h.id == id)
}

// Stats counts decoder activity. All counters only ever increase.
type Stats struct {
	Bytes          uint32
	Messages       uint32
	ChecksumErrors uint32
	FramingErrors  uint32
	OversizeFrames uint32
}

// Decoder reassembles UBX frames from a byte stream one byte at a time and
// calls the handlers registered for each valid frame.
//
// Decode must be called from a single goroutine. Handlers may be added and
// removed from any goroutine, including from inside a handler.
type Decoder struct {
	msg    *Message
	offset int
	state  decodeState

	mu       sync.Mutex
	handlers []*Handler

	bytes          atomic.Uint32
	messages       atomic.Uint32
	checksumErrors atomic.Uint32
	framingErrors  atomic.Uint32
	oversizeFrames atomic.Uint32

	log *zap.Logger
}

type Option func(*Decoder)

// WithPayloadCap sets the largest payload the decoder accepts. Longer frames
// are dropped.
func WithPayloadCap(n int) Option {
	return func(d *Decoder) {
		d.msg = NewMessage(n)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(d *Decoder) {
		d.log = log
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.msg == nil {
		d.msg = NewMessage(DefaultPayloadCap)
	}
	return d
}

// AddHandler registers fn for frames matching class and id. Either filter may
// be Any.
func (d *Decoder) AddHandler(class, id uint8, fn HandlerFunc, lifetime Lifetime) *Handler {
	h := &Handler{class: class, id: id, fn: fn, lifetime: lifetime}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
	return h
}

// RemoveHandler unregisters h. Removing a handler that is not registered is
// a no-op.
func (d *Decoder) RemoveHandler(h *Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(h)
}

func (d *Decoder) removeLocked(h *Handler) {
	for i, cur := range d.handlers {
		if cur == h {
			d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
			return
		}
	}
}

// Handlers returns the number of registered handlers.
func (d *Decoder) Handlers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// Reset drops any partially received frame.
func (d *Decoder) Reset() {
	d.offset = 0
	d.state = seekingSync
}

func (d *Decoder) Stats() Stats {
	return Stats{
		Bytes:          d.bytes.Load(),
		Messages:       d.messages.Load(),
		ChecksumErrors: d.checksumErrors.Load(),
		FramingErrors:  d.framingErrors.Load(),
		OversizeFrames: d.oversizeFrames.Load(),
	}
}

// Decode consumes one byte. It returns true if the byte completed at least
// one valid frame. Malformed input is never reported as an error; the decoder
// resynchronizes on the next sync byte instead.
func (d *Decoder) Decode(b byte) bool {
	d.bytes.Add(1)

	if d.state == seekingSync {
		if b != Sync1 {
			return false
		}
		d.msg.buf[0] = b
		d.offset = 1
		d.state = readingHeader
		return false
	}

	d.msg.buf[d.offset] = b
	d.offset++
	return d.process()
}

// Write feeds p to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.Decode(b)
	}
	return len(p), nil
}

// process advances the state machine over the bytes already buffered. It
// loops because resynchronizing can leave enough buffered bytes to complete
// a header or a whole frame.
func (d *Decoder) process() (completed bool) {
	for {
		switch d.state {
		case readingHeader:
			if d.offset < FrameOverhead {
				return
			}
			if d.msg.buf[1] != Sync2 {
				d.framingErrors.Add(1)
				d.shift(1)
				continue
			}
			n := int(binary.LittleEndian.Uint16(d.msg.buf[lenOffset:]))
			if n > d.msg.PayloadCap() {
				d.oversizeFrames.Add(1)
				d.log.Debug("ubx frame too long", zap.Int("payload_len", n), zap.Int("cap", d.msg.PayloadCap()))
				d.shift(1)
				continue
			}
			d.msg.payloadLen = n
			d.state = readingBody

		case readingBody:
			total := d.msg.payloadLen + FrameOverhead
			if d.offset < total {
				return
			}
			if !d.msg.checksumOK() {
				d.checksumErrors.Add(1)
				d.log.Debug("ubx checksum mismatch",
					zap.Uint8("class", d.msg.Class()), zap.Uint8("id", d.msg.ID()))
				d.shift(1)
				continue
			}
			d.messages.Add(1)
			d.dispatch()
			completed = true
			d.shift(total)

		default:
			return
		}
	}
}

// shift discards buffered bytes before the first Sync1 found at or after
// from. If one is found the header is accumulated again from there,
// otherwise the decoder goes back to looking for a sync byte.
func (d *Decoder) shift(from int) {
	for i := from; i < d.offset; i++ {
		if d.msg.buf[i] == Sync1 {
			n := copy(d.msg.buf, d.msg.buf[i:d.offset])
			d.offset = n
			d.state = readingHeader
			return
		}
	}
	d.offset = 0
	d.state = seekingSync
}

func (d *Decoder) dispatch() {
	class, id := d.msg.Class(), d.msg.ID()

	d.mu.Lock()
	var matched []*Handler
	for _, h := range d.handlers {
		if h.matches(class, id) {
			matched = append(matched, h)
		}
	}
	for _, h := range matched {
		if h.lifetime == Once {
			d.removeLocked(h)
		}
	}
	d.mu.Unlock()

	// Handlers run unlocked so they can register follow-up handlers.
	for _, h := range matched {
		h.fn(d.msg)
	}
}
