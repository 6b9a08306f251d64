// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gnss connects a receiver transport to the NMEA and UBX decoders
// and exposes the resulting fix.
package gnss

import (
	"encoding/json"
	"fmt"
	"time"
)

// ByteDecoder is fed every byte read from the receiver. It reports whether
// the byte completed a message.
type ByteDecoder interface {
	Decode(b byte) bool
}

// Sender writes a complete command to the receiver.
type Sender interface {
	SendCommand(b []byte) error
}

// Fix is a point-in-time copy of the decoded fix, suitable for sending to
// clients.
type Fix struct {
	Valid      bool      `json:"valid"`
	Fresh      bool      `json:"fresh"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AltitudeM  float64   `json:"altitude_m"`
	GeoidM     float64   `json:"geoid_m"`
	SpeedKnots float64   `json:"speed_knots"`
	CourseDeg  float64   `json:"course_deg"`
	Satellites uint32    `json:"satellites"`
	HDOP       float64   `json:"hdop"`
	AccuracyM  float64   `json:"accuracy_m"`
	Time       time.Time `json:"time"`
	AgeMs      int64     `json:"age_ms"`
}

// Bytes returns the JSON encoding of f followed by a newline.
func (f Fix) Bytes() (b []byte, err error) {
	b, err = json.Marshal(f)
	if err != nil {
		err = fmt.Errorf("gnss/Fix.Bytes: %w", err)
		return
	}
	return append(b, '\n'), nil
}
