// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package gnss

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/legacy"
	"gitlab.com/postmarketOS/assettracker/internal/nmea"
	"gitlab.com/postmarketOS/assettracker/internal/transport"
	"gitlab.com/postmarketOS/assettracker/internal/ubx"
)

const (
	// DefaultIdleInterval is how long Run sleeps when the receiver had no
	// data waiting.
	DefaultIdleInterval = 10 * time.Millisecond

	readBufferSize = 256
)

// Tracker reads from a receiver transport and feeds every byte to the NMEA
// parser and to any additional decoders, such as a UBX decoder.
//
// Update and Run must not be called concurrently with each other. Everything
// else is safe to call from any goroutine.
type Tracker struct {
	port   transport.Transport
	parser *nmea.Parser
	legacy *legacy.Adapter

	maxFixAge      time.Duration
	accuracyFactor float64
	idle           time.Duration
	now            func() time.Time
	log            *zap.Logger

	mu         sync.Mutex
	decoders   []ByteDecoder
	onSentence []func()
	onLoop     []func()

	buf []byte
}

type TrackerOption func(*Tracker)

func WithLogger(log *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		t.log = log
	}
}

// WithClock sets the time source for commit stamps and fix ages.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithMaxFixAge sets how old a location may be and still count as a fix.
func WithMaxFixAge(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.maxFixAge = d
	}
}

// WithAccuracyFactor sets the HDOP multiplier used for accuracy estimates.
func WithAccuracyFactor(f float64) TrackerOption {
	return func(t *Tracker) {
		t.accuracyFactor = f
	}
}

func WithIdleInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.idle = d
	}
}

func NewTracker(port transport.Transport, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		port:           port,
		maxFixAge:      legacy.DefaultMaxFixAge,
		accuracyFactor: legacy.DefaultAccuracyFactor,
		idle:           DefaultIdleInterval,
		now:            time.Now,
		log:            zap.NewNop(),
		buf:            make([]byte, readBufferSize),
	}
	for _, o := range opts {
		o(t)
	}
	t.parser = nmea.NewParser(nmea.WithClock(t.now), nmea.WithLogger(t.log))
	t.legacy = legacy.New(t.parser,
		legacy.WithMaxFixAge(t.maxFixAge),
		legacy.WithAccuracyFactor(t.accuracyFactor))
	return t
}

// Parser returns the NMEA parser holding the committed fix.
func (t *Tracker) Parser() *nmea.Parser {
	return t.parser
}

// Legacy returns the fix in legacy units.
func (t *Tracker) Legacy() *legacy.Adapter {
	return t.legacy
}

// AddDecoder feeds d every byte read from now on.
func (t *Tracker) AddDecoder(d ByteDecoder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decoders = append(t.decoders, d)
}

// OnSentence registers fn to be called after every Update that completed at
// least one valid NMEA sentence.
func (t *Tracker) OnSentence(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSentence = append(t.onSentence, fn)
}

// OnLoop registers fn to be called on every iteration of Run.
func (t *Tracker) OnLoop(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLoop = append(t.onLoop, fn)
}

func (t *Tracker) callbacks() (decoders []ByteDecoder, onSentence, onLoop []func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decoders, t.onSentence, t.onLoop
}

// Update reads whatever the receiver has waiting and decodes it. It returns
// the number of bytes read.
func (t *Tracker) Update() (n int, err error) {
	n, err = t.port.Read(t.buf)
	if err != nil {
		err = fmt.Errorf("gnss/Tracker.Update: %w", err)
		return
	}

	decoders, onSentence, _ := t.callbacks()
	sentence := false
	for _, c := range t.buf[:n] {
		if t.parser.Encode(c) {
			sentence = true
		}
		for _, d := range decoders {
			d.Decode(c)
		}
	}
	if sentence {
		for _, fn := range onSentence {
			fn()
		}
	}
	return
}

// Run calls Update until ctx is cancelled or the transport fails. When there
// is nothing to read it sleeps for the idle interval. Cancellation is not an
// error.
func (t *Tracker) Run(ctx context.Context) error {
	t.log.Info("gnss tracker started", zap.Stringer("port", t.port))
	defer t.log.Info("gnss tracker stopped", zap.Stringer("port", t.port))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := t.Update()
		if err != nil {
			return fmt.Errorf("gnss/Tracker.Run: %w", err)
		}

		_, _, onLoop := t.callbacks()
		for _, fn := range onLoop {
			fn()
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.idle):
			}
		}
	}
}

// SendCommand writes b to the receiver in one locked transaction.
func (t *Tracker) SendCommand(b []byte) (err error) {
	if _, err = t.port.Write(b); err != nil {
		err = fmt.Errorf("gnss/Tracker.SendCommand: %w", err)
	}
	return
}

// AntennaInternal switches a u-blox receiver to its internal antenna.
func (t *Tracker) AntennaInternal() error {
	return t.SendCommand(ubx.Antenna(false).Bytes())
}

// AntennaExternal switches a u-blox receiver to an external antenna.
func (t *Tracker) AntennaExternal() error {
	return t.SendCommand(ubx.Antenna(true).Bytes())
}

// Fix returns a consistent copy of the current fix. It does not mark any
// value as read.
func (t *Tracker) Fix() Fix {
	d := t.parser.Snapshot()

	f := Fix{
		Valid:      d.Location.IsValid(),
		Satellites: d.Satellites.Value(),
		HDOP:       float64(d.HDOP.Value()) / 100,
	}
	f.AccuracyM = t.accuracyFactor * f.HDOP
	if f.Valid {
		age := d.Location.Age()
		f.AgeMs = age.Milliseconds()
		f.Fresh = age < t.maxFixAge
		f.Lat = d.Location.Lat()
		f.Lon = d.Location.Lng()
		f.AltitudeM = d.Altitude.Meters()
		f.GeoidM = d.GeoidSeparation.Meters()
		f.SpeedKnots = d.Speed.Knots()
		f.CourseDeg = d.Course.Deg()
	}
	if d.Date.IsValid() && d.Time.IsValid() {
		f.Time = time.Date(int(d.Date.Year()), time.Month(d.Date.Month()), int(d.Date.Day()),
			int(d.Time.Hour()), int(d.Time.Minute()), int(d.Time.Second()),
			int(d.Time.Centisecond())*int(10*time.Millisecond), time.UTC)
	}
	return f
}
