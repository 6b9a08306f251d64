// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaNoFix = "$GNGGA,143540.00,,,,,0,03,3.73,,,,,,*4B\r\n"
	ggaFix   = "$GNGGA,143541.00,4228.21353,N,07503.88667,W,1,05,1.85,446.4,M,-34.1,M,,*7A\r\n"
	// ggaFix moved slightly, with a bogus altitude
	ggaMoved   = "$GNGGA,143542.00,4228.21400,N,07503.88700,W,1,06,1.20,999.9,M,-34.1,M,,*76\r\n"
	ggaNoAlt   = "$GNGGA,143543.00,4228.21400,N,07503.88700,W,1,06,1.20,,M,-34.1,M,,*59\r\n"
	rmcSouth   = "$GPRMC,081836,A,3751.65,S,14507.36,E,000.0,360.0,130998,011.3,E*62\r\n"
	rmcVoid    = "$GPRMC,225446,V,4916.45,N,12311.12,W,000.5,054.7,191194,020.3,E*7F\r\n"
	glonassGGA = "$GLGGA,101010.50,5130.00000,N,00007.50000,W,2,09,0.90,35.0,M,47.0,M,,*65\r\n"
	beidouRMC  = "$BDRMC,101011.00,A,5130.00000,N,00007.50000,W,12.5,270.0,150326,,,A*68\r\n"
	garminRMC  = "$PGRMC,1,2,3*57\r\n"
	gsa        = "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39\r\n"
	gsv        = "$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74\r\n"
	txt        = "$GPTXT,01,01,02,ABCDEFGHIJKLMNOPQRSTUVWXYZ*56\r\n"
	ggaA       = "$GPGGA,000001.00,0100.00000,N,00100.00000,E,1,04,1.00,10.0,M,0.0,M,,*59\r\n"
	ggaB       = "$GPGGA,000002.00,0200.00000,S,00200.00000,W,1,04,1.00,10.0,M,0.0,M,,*55\r\n"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// encode feeds s and returns how many sentences validated.
func encode(p *Parser, s string) (valid int) {
	for i := 0; i < len(s); i++ {
		if p.Encode(s[i]) {
			valid++
		}
	}
	return
}

func corrupt(s string) string {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == '*' {
			// flip the last checksum digit
			if b[i+2] == '0' {
				b[i+2] = '1'
			} else {
				b[i+2] = '0'
			}
			break
		}
	}
	return string(b)
}

func TestGGAFixQuality(t *testing.T) {
	p := NewParser()

	assert.Equal(t, 1, encode(p, ggaNoFix))
	loc := p.Location()
	assert.False(t, loc.IsValid())
	sats := p.Satellites()
	assert.True(t, sats.IsValid())
	assert.Equal(t, uint32(3), sats.Value())
	hdop := p.HDOP()
	assert.Equal(t, int32(373), hdop.Value())

	assert.Equal(t, 1, encode(p, ggaFix))
	loc = p.Location()
	require.True(t, loc.IsValid())
	assert.InDelta(t, 42.4702255, loc.Lat(), 1e-9)
	assert.InDelta(t, -75.0647778, loc.Lng(), 1e-7)

	tm := p.Time()
	assert.Equal(t, uint8(14), tm.Hour())
	assert.Equal(t, uint8(35), tm.Minute())
	assert.Equal(t, uint8(41), tm.Second())
	assert.Equal(t, uint8(0), tm.Centisecond())

	alt := p.Altitude()
	assert.InDelta(t, 446.4, alt.Meters(), 1e-9)
	geoid := p.GeoidSeparation()
	assert.InDelta(t, -34.1, geoid.Meters(), 1e-9)
	sats = p.Satellites()
	assert.Equal(t, uint32(5), sats.Value())

	// a later no-fix sentence drops the location
	encode(p, ggaNoFix)
	loc = p.Location()
	assert.False(t, loc.IsValid())
}

func TestCorruptSentenceDoesNotCommit(t *testing.T) {
	p := NewParser()
	encode(p, ggaFix)
	before := p.Snapshot()

	assert.Equal(t, 0, encode(p, corrupt(ggaMoved)))
	after := p.Snapshot()

	assert.Equal(t, before.Location.RawLat(), after.Location.RawLat())
	assert.Equal(t, before.Location.RawLng(), after.Location.RawLng())
	assert.Equal(t, before.Time.Value(), after.Time.Value())
	assert.Equal(t, before.Altitude.Value(), after.Altitude.Value())
	assert.Equal(t, before.Satellites.Value(), after.Satellites.Value())
	assert.Equal(t, before.HDOP.Value(), after.HDOP.Value())
	assert.Equal(t, uint32(1), p.Stats().FailedChecksum)
}

func TestStagedValuesDoNotLeak(t *testing.T) {
	p := NewParser()
	encode(p, ggaFix)
	encode(p, corrupt(ggaMoved))
	// valid sentence with an empty altitude must not pick up 999.9
	assert.Equal(t, 1, encode(p, ggaNoAlt))

	alt := p.Altitude()
	assert.Equal(t, int32(44640), alt.Value())
	hdop := p.HDOP()
	assert.Equal(t, int32(120), hdop.Value())
}

func TestIdempotentRead(t *testing.T) {
	p := NewParser()
	encode(p, ggaFix)

	first := p.Location()
	second := p.Location()
	assert.True(t, first.IsUpdated())
	assert.False(t, second.IsUpdated())
	assert.Equal(t, first.RawLat(), second.RawLat())
	assert.Equal(t, first.Lng(), second.Lng())

	// reading a raw value clears the flag on that copy
	third := p.Location()
	assert.False(t, third.IsUpdated())

	encode(p, ggaFix)
	loc := p.Location()
	assert.True(t, loc.IsUpdated())
	loc.RawLat()
	assert.False(t, loc.IsUpdated())
}

func TestRMC(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 1, encode(p, rmcSouth))

	loc := p.Location()
	require.True(t, loc.IsValid())
	assert.True(t, loc.RawLat().Negative)
	assert.False(t, loc.RawLng().Negative)
	assert.InDelta(t, -37.860833333, loc.Lat(), 1e-9)
	assert.InDelta(t, 145.122666667, loc.Lng(), 1e-9)

	d := p.Date()
	assert.Equal(t, uint32(130998), d.Value())
	assert.Equal(t, uint8(13), d.Day())
	assert.Equal(t, uint8(9), d.Month())
	assert.Equal(t, uint16(2098), d.Year())

	c := p.Course()
	assert.InDelta(t, 360.0, c.Deg(), 1e-9)
	s := p.Speed()
	assert.Equal(t, 0.0, s.Knots())
	assert.Equal(t, uint32(1), p.Stats().SentencesWithFix)
}

func TestRMCVoidStatus(t *testing.T) {
	p := NewParser()
	encode(p, rmcSouth)
	assert.Equal(t, 1, encode(p, rmcVoid))

	loc := p.Location()
	assert.False(t, loc.IsValid())
	// speed and course are only committed with a fix
	s := p.Speed()
	assert.Equal(t, int32(0), s.Value())
	// date and time always are
	d := p.Date()
	assert.Equal(t, uint32(191194), d.Value())
}

func TestTalkers(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 1, encode(p, glonassGGA))
	loc := p.Location()
	assert.InDelta(t, 51.5, loc.Lat(), 1e-9)
	assert.InDelta(t, -0.125, loc.Lng(), 1e-9)
	tm := p.Time()
	assert.Equal(t, uint8(50), tm.Centisecond())

	assert.Equal(t, 1, encode(p, beidouRMC))
	s := p.Speed()
	assert.InDelta(t, 12.5, s.Knots(), 1e-9)
	assert.InDelta(t, 12.5*1.852, s.KMPH(), 1e-9)
	d := p.Date()
	assert.Equal(t, uint16(2026), d.Year())
}

func TestProprietaryAndUnknownSentences(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 1, encode(p, garminRMC))
	assert.Equal(t, 1, encode(p, gsa))

	data := p.Snapshot()
	assert.False(t, data.Location.IsValid())
	assert.False(t, data.Date.IsValid())
	assert.False(t, data.Time.IsValid())
	assert.Equal(t, uint32(2), p.Stats().PassedChecksum)
}

func TestStats(t *testing.T) {
	p := NewParser()
	stream := ggaNoFix + ggaFix + corrupt(ggaFix) + rmcSouth + "garbage"
	encode(p, stream)

	s := p.Stats()
	assert.Equal(t, uint32(len(stream)), s.CharsProcessed)
	assert.Equal(t, uint32(3), s.PassedChecksum)
	assert.Equal(t, uint32(1), s.FailedChecksum)
	assert.Equal(t, uint32(2), s.SentencesWithFix)
}

func TestChecksumDigitsCompleteSentence(t *testing.T) {
	p := NewParser()
	s := ggaFix[:len(ggaFix)-2]
	for i := 0; i < len(s)-1; i++ {
		require.False(t, p.Encode(s[i]))
	}
	assert.True(t, p.Encode(s[len(s)-1]))
	// line terminators are not needed and are ignored
	assert.False(t, p.Encode('\r'))
	assert.False(t, p.Encode('\n'))
}

func TestLowercaseChecksum(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 1, encode(p, "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39"))
	assert.Equal(t, 1, encode(p, "$GNGGA,143541.00,4228.21353,N,07503.88667,W,1,05,1.85,446.4,M,-34.1,M,,*7a"))
}

func TestSentenceCutShort(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 0, encode(p, "$GNGGA,143541.00,4228.21353,N\r\n"))
	// a new '$' restarts parsing mid sentence
	assert.Equal(t, 1, encode(p, "$GNGGA,1435"+ggaFix))

	s := p.Stats()
	assert.Equal(t, uint32(0), s.FailedChecksum)
	assert.Equal(t, uint32(1), s.PassedChecksum)
}

func TestMalformedFieldKeepsCommittedValue(t *testing.T) {
	p := NewParser()
	encode(p, ggaFix)
	bad := Sentence{Type: "GNGGA", Data: []string{"143544.00", "4228.21353", "N", "07503.88667", "W", "1", "x", "1.85", "abc", "M", "-34.1", "M", "", ""}}
	assert.Equal(t, 1, encode(p, bad.String()))

	alt := p.Altitude()
	assert.Equal(t, int32(44640), alt.Value())
	sats := p.Satellites()
	assert.Equal(t, uint32(5), sats.Value())
	tm := p.Time()
	assert.Equal(t, uint32(14354400), tm.Value())
}

func TestOutOfRangeFieldsKeepCommittedValues(t *testing.T) {
	tables := []struct {
		name string
		data []string
	}{
		{"overflowing lat, sats and altitude", []string{"143542.00", "99959.00000", "N", "07503.88667", "W", "1", "4294967300", "1.85", "99999999.9", "M", "-34.1", "M", "", ""}},
		{"60 minutes and 360 degrees", []string{"143542.00", "4260.00000", "N", "36000.00000", "W", "1", "05", "1.85", "446.4", "M", "-34.1", "M", "", ""}},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			p := NewParser()
			require.Equal(t, 1, encode(p, ggaFix))
			bad := Sentence{Type: "GNGGA", Data: table.data}
			require.Equal(t, 1, encode(p, bad.String()))

			loc := p.Location()
			require.True(t, loc.IsValid())
			assert.InDelta(t, 42.4702255, loc.Lat(), 1e-9)
			assert.InDelta(t, -75.0647778, loc.Lng(), 1e-7)
			sats := p.Satellites()
			assert.Equal(t, uint32(5), sats.Value())
			alt := p.Altitude()
			assert.Equal(t, int32(44640), alt.Value())
			tm := p.Time()
			assert.Equal(t, uint32(14354200), tm.Value())
		})
	}
}

func TestCustomTerms(t *testing.T) {
	p := NewParser()
	inView := p.AddCustom("GPGSV", 3)
	text := p.AddCustom("GPTXT", 4)
	ggaSatsID := p.AddCustom("GNGGA", 7)

	c := p.Custom(inView)
	assert.False(t, c.IsValid())

	encode(p, gsv)
	encode(p, txt)
	encode(p, corrupt(ggaMoved))

	c = p.Custom(inView)
	assert.True(t, c.IsValid())
	assert.True(t, c.IsUpdated())
	assert.Equal(t, "11", c.Value())
	assert.False(t, c.IsUpdated())
	c = p.Custom(inView)
	assert.False(t, c.IsUpdated())

	c = p.Custom(text)
	assert.Equal(t, "ABCDEFGHIJKLMN", c.Value(), "long terms are truncated")
	assert.Len(t, c.Value(), MaxTermLen)

	c = p.Custom(ggaSatsID)
	assert.False(t, c.IsValid(), "custom terms only commit with a valid checksum")
	encode(p, ggaFix)
	c = p.Custom(ggaSatsID)
	assert.Equal(t, "05", c.Value())

	assert.Equal(t, Custom{}, p.Custom(CustomID(42)))
}

func TestAge(t *testing.T) {
	clock := newFakeClock()
	p := NewParser(WithClock(clock.Now))

	loc := p.Location()
	assert.Equal(t, InfiniteAge, loc.Age())

	encode(p, ggaFix)
	clock.Advance(1500 * time.Millisecond)
	loc = p.Location()
	assert.Equal(t, 1500*time.Millisecond, loc.Age())

	// ages keep counting on the copy
	clock.Advance(time.Second)
	assert.Equal(t, 2500*time.Millisecond, loc.Age())

	d := p.Date()
	assert.Equal(t, InfiniteAge, d.Age())
}

func TestConcurrentReadersSeeWholeLocations(t *testing.T) {
	p := NewParser()
	encode(p, ggaA)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			loc := p.Location()
			lat, lng := loc.Lat(), loc.Lng()
			ok := (lat == 1 && lng == 1) || (lat == -2 && lng == -2)
			if !ok {
				t.Errorf("torn location: %v,%v", lat, lng)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		encode(p, ggaB)
		encode(p, ggaA)
	}
	close(done)
	wg.Wait()
}
