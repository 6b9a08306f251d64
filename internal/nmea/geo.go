// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import "math"

// earthRadius in meters, as used for great-circle distances.
const earthRadius = 6372795

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceBetween returns the great-circle distance in meters between two
// points given in decimal degrees.
func DistanceBetween(lat1, lng1, lat2, lng2 float64) float64 {
	delta := radians(lng1 - lng2)
	sdlong, cdlong := math.Sincos(delta)
	slat1, clat1 := math.Sincos(radians(lat1))
	slat2, clat2 := math.Sincos(radians(lat2))

	delta = clat1*slat2 - slat1*clat2*cdlong
	delta = math.Sqrt(delta*delta + (clat2*sdlong)*(clat2*sdlong))
	denom := slat1*slat2 + clat1*clat2*cdlong
	return math.Atan2(delta, denom) * earthRadius
}

// CourseTo returns the initial course in degrees, 0 to 360, for travelling
// from the first point to the second.
func CourseTo(lat1, lng1, lat2, lng2 float64) float64 {
	dlon := radians(lng2 - lng1)
	lat1, lat2 = radians(lat1), radians(lat2)

	a1 := math.Sin(dlon) * math.Cos(lat2)
	a2 := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	c := math.Atan2(a1, a2)
	if c < 0 {
		c += 2 * math.Pi
	}
	return degrees(c)
}

var directions = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Cardinal names the 16-point compass direction closest to course.
func Cardinal(course float64) string {
	course = math.Mod(course, 360)
	if course < 0 {
		course += 360
	}
	return directions[int((course+11.25)/22.5)%len(directions)]
}
