// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import (
	"math"
	"testing"
)

func TestDistanceBetween(t *testing.T) {
	tables := []struct {
		lat1, lng1, lat2, lng2 float64
		expected               float64
	}{
		{0, 0, 0, 0, 0},
		// one degree of longitude on the equator
		{0, 0, 0, 1, 6372795 * math.Pi / 180},
		// pole to pole
		{90, 0, -90, 0, 6372795 * math.Pi},
	}

	for _, table := range tables {
		out := DistanceBetween(table.lat1, table.lng1, table.lat2, table.lng2)
		if math.Abs(out-table.expected) > 1e-3 {
			t.Errorf("%v,%v -> %v,%v expected: %v, got: %v", table.lat1, table.lng1, table.lat2, table.lng2, table.expected, out)
		}
	}
}

func TestCourseTo(t *testing.T) {
	tables := []struct {
		lat1, lng1, lat2, lng2 float64
		expected               float64
	}{
		{0, 0, 1, 0, 0},
		{0, 0, 0, 1, 90},
		{0, 0, -1, 0, 180},
		{0, 0, 0, -1, 270},
	}

	for _, table := range tables {
		out := CourseTo(table.lat1, table.lng1, table.lat2, table.lng2)
		if math.Abs(out-table.expected) > 1e-9 {
			t.Errorf("%v,%v -> %v,%v expected: %v, got: %v", table.lat1, table.lng1, table.lat2, table.lng2, table.expected, out)
		}
	}
}

func TestCardinal(t *testing.T) {
	tables := []struct {
		in       float64
		expected string
	}{
		{0, "N"},
		{11.24, "N"},
		{11.25, "NNE"},
		{90, "E"},
		{200, "SSW"},
		{348.75, "N"},
		{359.9, "N"},
		{-90, "W"},
		{720 + 45, "NE"},
	}

	for _, table := range tables {
		if out := Cardinal(table.in); out != table.expected {
			t.Errorf("%v expected: %q, got: %q", table.in, table.expected, out)
		}
	}
}
