// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package legacy presents parsed fix data in the units and formats used by
// older tracker firmware: degrees and decimal minutes, knots, two digit
// years and HDOP based accuracy.
package legacy

import (
	"fmt"
	"math"
	"time"

	"gitlab.com/postmarketOS/assettracker/internal/nmea"
)

const (
	// DefaultMaxFixAge is how recent a location must be for GPSFix.
	DefaultMaxFixAge = 10 * time.Second
	// DefaultAccuracyFactor converts HDOP into an accuracy estimate in meters.
	DefaultAccuracyFactor = 1.8
)

// Source provides committed fix values. *nmea.Parser implements it.
type Source interface {
	Location() nmea.Location
	Date() nmea.Date
	Time() nmea.Time
	Speed() nmea.Speed
	Course() nmea.Course
	Altitude() nmea.Altitude
	GeoidSeparation() nmea.Altitude
	Satellites() nmea.Integer
	HDOP() nmea.Decimal
	Snapshot() nmea.Data
}

type Adapter struct {
	src            Source
	maxFixAge      time.Duration
	accuracyFactor float64
}

type Option func(*Adapter)

func WithMaxFixAge(d time.Duration) Option {
	return func(a *Adapter) {
		a.maxFixAge = d
	}
}

func WithAccuracyFactor(f float64) Option {
	return func(a *Adapter) {
		a.accuracyFactor = f
	}
}

func New(src Source, opts ...Option) *Adapter {
	a := &Adapter{
		src:            src,
		maxFixAge:      DefaultMaxFixAge,
		accuracyFactor: DefaultAccuracyFactor,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// DegreesMinutes converts decimal degrees to DDMM.MMMMM. The result is always
// positive; the hemisphere has to be taken from the sign of deg.
func DegreesMinutes(deg float64) float64 {
	deg = math.Abs(deg)
	whole := math.Floor(deg)
	return whole*100 + (deg-whole)*60
}

// Lat returns the latitude as DDMM.MMMMM.
func (a *Adapter) Lat() float64 {
	loc := a.src.Location()
	return DegreesMinutes(loc.Lat())
}

// Lon returns the longitude as DDMM.MMMMM.
func (a *Adapter) Lon() float64 {
	loc := a.src.Location()
	return DegreesMinutes(loc.Lng())
}

func (a *Adapter) LatDeg() float64 {
	loc := a.src.Location()
	return loc.Lat()
}

func (a *Adapter) LonDeg() float64 {
	loc := a.src.Location()
	return loc.Lng()
}

// LatLon formats the signed location as "lat,lon".
func (a *Adapter) LatLon() string {
	loc := a.src.Location()
	return fmt.Sprintf("%f,%f", loc.Lat(), loc.Lng())
}

// Speed returns the last committed speed in knots, whether or not the fix is
// still valid.
func (a *Adapter) Speed() float64 {
	s := a.src.Speed()
	return s.Knots()
}

// Angle returns the course over ground in degrees.
func (a *Adapter) Angle() float64 {
	c := a.src.Course()
	return c.Deg()
}

func (a *Adapter) Hour() uint8 {
	t := a.src.Time()
	return t.Hour()
}

func (a *Adapter) Minute() uint8 {
	t := a.src.Time()
	return t.Minute()
}

func (a *Adapter) Seconds() uint8 {
	t := a.src.Time()
	return t.Second()
}

// Milliseconds has centisecond resolution.
func (a *Adapter) Milliseconds() uint16 {
	t := a.src.Time()
	return uint16(t.Centisecond()) * 10
}

// Year returns the two digit year.
func (a *Adapter) Year() uint8 {
	d := a.src.Date()
	return uint8(d.Year() % 100)
}

func (a *Adapter) Month() uint8 {
	d := a.src.Date()
	return d.Month()
}

func (a *Adapter) Day() uint8 {
	d := a.src.Date()
	return d.Day()
}

// GPSTimestamp returns the milliseconds since midnight UTC of the last
// committed time, or 0 if none was received.
func (a *Adapter) GPSTimestamp() uint32 {
	t := a.src.Time()
	return uint32(t.Hour())*60*60*1000 +
		uint32(t.Minute())*60*1000 +
		uint32(t.Second())*1000 +
		uint32(t.Centisecond())*10
}

// FixQuality is 1 while the receiver reports a valid location and 0
// otherwise. It leaves the location's updated flag alone.
func (a *Adapter) FixQuality() uint8 {
	loc := a.src.Snapshot().Location
	if loc.IsValid() {
		return 1
	}
	return 0
}

func (a *Adapter) HDOP() float64 {
	h := a.src.HDOP()
	return float64(h.Value()) / 100
}

// Accuracy estimates the horizontal accuracy in meters from HDOP.
func (a *Adapter) Accuracy() float64 {
	return a.accuracyFactor * a.HDOP()
}

func (a *Adapter) Altitude() float64 {
	alt := a.src.Altitude()
	return alt.Meters()
}

func (a *Adapter) GeoidHeight() float64 {
	g := a.src.GeoidSeparation()
	return g.Meters()
}

func (a *Adapter) Satellites() uint8 {
	s := a.src.Satellites()
	return uint8(s.Value())
}

// GPSFix reports whether there is a valid location that is younger than the
// maximum fix age. Like FixQuality it does not consume the location.
func (a *Adapter) GPSFix() bool {
	loc := a.src.Snapshot().Location
	return loc.IsValid() && loc.Age() < a.maxFixAge
}
