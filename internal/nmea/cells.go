// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import (
	"math"
	"time"
)

// InfiniteAge is reported by Age for values that have never been committed.
const InfiniteAge = time.Duration(math.MaxInt64)

const (
	mphPerKnot    = 1.15077945
	mpsPerKnot    = 0.51444444
	kmphPerKnot   = 1.852
	milesPerMeter = 0.00062137112
	kmPerMeter    = 0.001
	feetPerMeter  = 3.2808399

	century = 2000
)

// cell holds the state shared by every committed value. The value types
// below are plain data: the Parser hands out copies, and the methods that
// clear the updated flag only touch that copy.
type cell struct {
	valid      bool
	updated    bool
	lastCommit time.Time
	now        func() time.Time
}

// IsValid reports whether a value has ever been committed.
func (c *cell) IsValid() bool { return c.valid }

// IsUpdated reports whether the value was committed since it was last read.
func (c *cell) IsUpdated() bool { return c.updated }

// Age returns how long ago the value was committed, or InfiniteAge if it
// never was.
func (c *cell) Age() time.Duration {
	if !c.valid || c.now == nil {
		return InfiniteAge
	}
	return c.now().Sub(c.lastCommit)
}

func (c *cell) markRead() { c.updated = false }

func (c *cell) commit(now func() time.Time) {
	c.valid = true
	c.updated = true
	c.now = now
	c.lastCommit = now()
}

// Location is a committed latitude and longitude pair.
type Location struct {
	cell
	lat, lng RawDegrees
}

func (l *Location) commit(lat, lng RawDegrees, now func() time.Time) {
	l.lat, l.lng = lat, lng
	l.cell.commit(now)
}

func (l *Location) invalidate() {
	l.valid = false
}

// RawLat returns the fixed-point latitude and clears the updated flag.
func (l *Location) RawLat() RawDegrees {
	l.updated = false
	return l.lat
}

// RawLng returns the fixed-point longitude and clears the updated flag.
func (l *Location) RawLng() RawDegrees {
	l.updated = false
	return l.lng
}

// Lat returns the signed latitude in degrees and clears the updated flag.
func (l *Location) Lat() float64 {
	l.updated = false
	return l.lat.Degrees()
}

// Lng returns the signed longitude in degrees and clears the updated flag.
func (l *Location) Lng() float64 {
	l.updated = false
	return l.lng.Degrees()
}

// Date is a committed ddmmyy date.
type Date struct {
	cell
	date uint32
}

func (d *Date) commit(v uint32, now func() time.Time) {
	d.date = v
	d.cell.commit(now)
}

// Value returns the raw ddmmyy value.
func (d *Date) Value() uint32 {
	d.updated = false
	return d.date
}

// Year returns the four digit year. Receivers only send two digits, which
// are taken to be in the 2000s.
func (d *Date) Year() uint16 {
	d.updated = false
	return uint16(d.date%100) + century
}

func (d *Date) Month() uint8 {
	d.updated = false
	return uint8((d.date / 100) % 100)
}

func (d *Date) Day() uint8 {
	d.updated = false
	return uint8(d.date / 10000)
}

// Time is a committed UTC time of day, hhmmsscc.
type Time struct {
	cell
	time uint32
}

func (t *Time) commit(v uint32, now func() time.Time) {
	t.time = v
	t.cell.commit(now)
}

// Value returns the raw hhmmsscc value.
func (t *Time) Value() uint32 {
	t.updated = false
	return t.time
}

func (t *Time) Hour() uint8 {
	t.updated = false
	return uint8(t.time / 1000000)
}

func (t *Time) Minute() uint8 {
	t.updated = false
	return uint8((t.time / 10000) % 100)
}

func (t *Time) Second() uint8 {
	t.updated = false
	return uint8((t.time / 100) % 100)
}

func (t *Time) Centisecond() uint8 {
	t.updated = false
	return uint8(t.time % 100)
}

// Decimal is a committed value with two decimal places, stored in hundredths.
type Decimal struct {
	cell
	val int32
}

func (d *Decimal) commit(v int32, now func() time.Time) {
	d.val = v
	d.cell.commit(now)
}

// Value returns the value in hundredths.
func (d *Decimal) Value() int32 {
	d.updated = false
	return d.val
}

func (d *Decimal) float() float64 {
	d.updated = false
	return float64(d.val) / 100
}

// Speed over ground.
type Speed struct{ Decimal }

func (s *Speed) Knots() float64 { return s.float() }
func (s *Speed) MPH() float64   { return mphPerKnot * s.float() }
func (s *Speed) MPS() float64   { return mpsPerKnot * s.float() }
func (s *Speed) KMPH() float64  { return kmphPerKnot * s.float() }

// Course over ground in degrees from true north.
type Course struct{ Decimal }

func (c *Course) Deg() float64 { return c.float() }

// Altitude above mean sea level, also used for the geoid separation.
type Altitude struct{ Decimal }

func (a *Altitude) Meters() float64     { return a.float() }
func (a *Altitude) Miles() float64      { return milesPerMeter * a.float() }
func (a *Altitude) Kilometers() float64 { return kmPerMeter * a.float() }
func (a *Altitude) Feet() float64       { return feetPerMeter * a.float() }

// Integer is a committed unsigned count such as the number of satellites.
type Integer struct {
	cell
	val uint32
}

func (i *Integer) commit(v uint32, now func() time.Time) {
	i.val = v
	i.cell.commit(now)
}

func (i *Integer) Value() uint32 {
	i.updated = false
	return i.val
}

// Custom is the committed text of a caller-selected sentence term.
type Custom struct {
	cell
	Sentence string
	Term     int
	val      string
}

func (c *Custom) Value() string {
	c.updated = false
	return c.val
}

// Data is the full set of committed fix values.
type Data struct {
	Location        Location
	Date            Date
	Time            Time
	Speed           Speed
	Course          Course
	Altitude        Altitude
	GeoidSeparation Altitude
	Satellites      Integer
	HDOP            Decimal
}
