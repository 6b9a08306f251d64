// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package nmea builds outgoing NMEA 0183 sentences and incrementally parses
// the RMC and GGA sentences a GNSS receiver emits.
package nmea

import (
	"fmt"
	"strings"
)

// Sentence is an outgoing sentence, such as a proprietary receiver command.
// Type includes the talker, e.g. "PUBX" or "GPGGA".
type Sentence struct {
	Type string
	Data []string
}

// checksum is the XOR of every byte between '$' and '*'.
func checksum(s string) uint8 {
	var sum uint8
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return sum
}

func (s Sentence) body() string {
	if len(s.Data) == 0 {
		// always make sure the type is followed by a comma if there is no data
		return s.Type + ","
	}
	return s.Type + "," + strings.Join(s.Data, ",")
}

// String returns the sentence framed as "$<body>*<checksum>" without a line
// terminator.
func (s Sentence) String() string {
	body := s.body()
	return fmt.Sprintf("$%s*%02X", body, checksum(body))
}

// Bytes returns the framed sentence followed by CR LF, ready to be written to
// a receiver.
func (s Sentence) Bytes() []byte {
	return []byte(s.String() + "\r\n")
}
