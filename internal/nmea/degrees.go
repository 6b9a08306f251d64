// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import "math"

// RawDegrees is one coordinate component in fixed point, kept exact until
// it is read as a float.
type RawDegrees struct {
	Deg        uint16
	Billionths uint32 // billionths of a degree
	Negative   bool
}

// Degrees returns the signed decimal degrees.
func (r RawDegrees) Degrees() float64 {
	d := float64(r.Deg) + float64(r.Billionths)/1e9
	if r.Negative {
		return -d
	}
	return d
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// leadingUint parses the run of digits at the start of s. ok is false when s
// does not start with a digit or the digits do not fit in a uint32.
func leadingUint(s string) (v uint32, n int, ok bool) {
	for n < len(s) && isDigit(s[n]) {
		d := uint32(s[n] - '0')
		if v > (math.MaxUint32-d)/10 {
			return 0, n, false
		}
		v = v*10 + d
		n++
	}
	return v, n, n > 0
}

// parseDecimal parses a signed decimal term into hundredths, truncating any
// digits past the second decimal place. Terms whose hundredths do not fit in
// an int32 fail.
func parseDecimal(term string) (int32, bool) {
	negative := len(term) > 0 && term[0] == '-'
	if negative {
		term = term[1:]
	}
	whole, n, ok := leadingUint(term)
	if !ok || whole > math.MaxInt32/100 {
		return 0, false
	}
	ret := int64(whole) * 100
	term = term[n:]
	if len(term) > 1 && term[0] == '.' && isDigit(term[1]) {
		ret += 10 * int64(term[1]-'0')
		if len(term) > 2 && isDigit(term[2]) {
			ret += int64(term[2] - '0')
		}
	}
	if ret > math.MaxInt32 {
		return 0, false
	}
	if negative {
		ret = -ret
	}
	return int32(ret), true
}

// parseDegrees parses a (d)ddmm.mmmm term. The hemisphere is carried by a
// separate term so Negative is always false. Degrees of 360 or more and
// minutes of 60 or more fail.
func parseDegrees(term string) (RawDegrees, bool) {
	left, n, ok := leadingUint(term)
	if !ok || left/100 >= 360 || left%100 >= 60 {
		return RawDegrees{}, false
	}
	multiplier := uint64(10000000)
	tenMillionthsOfMinutes := uint64(left%100) * multiplier
	deg := RawDegrees{Deg: uint16(left / 100)}

	term = term[n:]
	if len(term) > 0 && term[0] == '.' {
		for i := 1; i < len(term) && isDigit(term[i]) && multiplier > 1; i++ {
			multiplier /= 10
			tenMillionthsOfMinutes += uint64(term[i]-'0') * multiplier
		}
	}
	deg.Billionths = uint32((5*tenMillionthsOfMinutes + 1) / 3)
	return deg, true
}
