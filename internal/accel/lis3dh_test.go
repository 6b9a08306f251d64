// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package accel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regWrite struct {
	reg byte
	val []byte
}

// fakeRegs is a register file with auto-increment on multi-byte access.
type fakeRegs struct {
	regs    [0x40]byte
	writes  []regWrite
	reads   []byte
	readErr error
}

func newFakeRegs() *fakeRegs {
	f := &fakeRegs{}
	f.regs[regWhoAmI] = whoAmI
	return f
}

func (f *fakeRegs) ReadRegs(reg byte, dst []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	f.reads = append(f.reads, reg)
	copy(dst, f.regs[reg:])
	return nil
}

func (f *fakeRegs) WriteRegs(reg byte, src []byte) error {
	f.writes = append(f.writes, regWrite{reg, append([]byte(nil), src...)})
	copy(f.regs[reg:], src)
	return nil
}

func noSleep(t *testing.T) {
	orig := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = orig })
}

func TestNew(t *testing.T) {
	noSleep(t)

	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Equal(t, []byte{regWhoAmI}, f.reads)

	f.regs[regWhoAmI] = 0x32
	f.reads = nil
	_, err = New(f)
	assert.ErrorIs(t, err, ErrWhoAmI)
	assert.Len(t, f.reads, whoAmIAttempts)

	busErr := errors.New("nack")
	f.readErr = busErr
	_, err = New(f)
	assert.ErrorIs(t, err, ErrWhoAmI)
	assert.ErrorIs(t, err, busErr)
}

func TestSetupAccelMode(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)

	require.NoError(t, d.Setup(AccelMode(Rate100Hz)))
	assert.Equal(t, []regWrite{
		{regCtrl1, []byte{0x57}},
		{regCtrl2, []byte{0}},
		{regCtrl3, []byte{0}},
		{regCtrl4, []byte{0}},
		{regCtrl5, []byte{0}},
		{regCtrl6, []byte{0}},
		{regFIFOCtrl, []byte{0}},
	}, f.writes)
}

func TestSetupLowPowerWake(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)
	f.reads = nil

	require.NoError(t, d.Setup(LowPowerWakeMode(16)))
	assert.Equal(t, byte(0x2F), f.regs[regCtrl1])
	assert.Equal(t, byte(0x09), f.regs[regCtrl2])
	assert.Equal(t, byte(0x40), f.regs[regCtrl3])
	assert.Equal(t, byte(0x08), f.regs[regCtrl5])
	assert.Equal(t, byte(16), f.regs[regInt1Ths])
	assert.Equal(t, byte(0x0A), f.regs[regInt1Cfg])
	assert.Equal(t, []byte{regReference, regInt1Src}, f.reads)

	// ClearInterrupt rewrites the saved INT1 configuration
	f.regs[regInt1Cfg] = 0
	f.regs[regInt1Src] = 0x42
	src, err := d.ClearInterrupt()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), src)
	assert.Equal(t, byte(0x0A), f.regs[regInt1Cfg])
}

func TestSample(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)

	_, ok, err := d.Sample()
	require.NoError(t, err)
	assert.False(t, ok)

	f.regs[regStatus] = statusZYXDA
	copy(f.regs[regOutXL:], []byte{0x40, 0x01, 0xC0, 0xFE, 0x00, 0x40})
	s, ok, err := d.Sample()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Sample{X: 320, Y: -320, Z: 16384}, s)
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5, Sample{X: 3, Y: -4}.Magnitude(), 1e-12)
	assert.InDelta(t, 16384, Sample{Z: -16384}.Magnitude(), 1e-12)
	assert.Zero(t, Sample{}.Magnitude())
}

func TestRateFor(t *testing.T) {
	tests := []struct {
		hz   int
		want Rate
	}{
		{0, Rate1Hz},
		{1, Rate1Hz},
		{2, Rate10Hz},
		{10, Rate10Hz},
		{50, Rate50Hz},
		{101, Rate200Hz},
		{1000, Rate400Hz},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, RateFor(tc.hz), "hz %d", tc.hz)
	}
}

func TestPosition(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)

	tests := []struct {
		src  byte
		want Position
	}{
		{0x00, PositionUnknown},
		{int1SrcZH, PositionUnknown},
		{int1SrcIA | int1SrcZH, PositionFlat},
		{int1SrcIA | int1SrcZL, PositionUpsideDown},
		{int1SrcIA | int1SrcXH, PositionXHigh},
		{int1SrcIA | int1SrcYL, PositionYLow},
		{int1SrcIA | int1SrcXH | int1SrcYH, PositionUnknown},
	}
	for _, tc := range tests {
		f.regs[regInt1Src] = tc.src
		got, err := d.Position()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "src 0x%02x", tc.src)
	}
}

func TestSetupPositionInterrupt(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)
	f.reads = nil

	require.NoError(t, d.Setup(PositionInterrupt(0x21)))
	assert.Equal(t, byte(0x57), f.regs[regCtrl1])
	assert.Equal(t, byte(0x40), f.regs[regCtrl3])
	assert.Equal(t, byte(0x21), f.regs[regInt1Ths])
	assert.Equal(t, byte(0x00), f.regs[regInt1Dur])
	assert.Equal(t, byte(0xFF), f.regs[regInt1Cfg])

	var order []byte
	for _, w := range f.writes {
		order = append(order, w.reg)
	}
	assert.Equal(t, []byte{
		regCtrl1, regCtrl2, regCtrl3, regCtrl4, regCtrl5, regCtrl6,
		regFIFOCtrl, regInt1Ths, regInt1Dur, regInt1Cfg,
	}, order)
	// no reference read, only the latched source is cleared
	assert.Equal(t, []byte{regInt1Src}, f.reads)

	// the saved 6D configuration survives ClearInterrupt and Position
	// decodes the latched orientation
	f.regs[regInt1Cfg] = 0
	f.regs[regInt1Src] = int1SrcIA | int1SrcZH
	_, err = d.ClearInterrupt()
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), f.regs[regInt1Cfg])
	pos, err := d.Position()
	require.NoError(t, err)
	assert.Equal(t, PositionFlat, pos)
}

func TestTemperature(t *testing.T) {
	noSleep(t)
	f := newFakeRegs()
	d, err := New(f)
	require.NoError(t, err)

	require.NoError(t, d.EnableTemperature(true))
	assert.Equal(t, byte(0xC0), f.regs[regTempCfg])

	copy(f.regs[regOutADC3L:], []byte{0x00, 0xFD})
	temp, err := d.Temperature()
	require.NoError(t, err)
	assert.Equal(t, int16(-3), temp)

	require.NoError(t, d.EnableTemperature(false))
	assert.Equal(t, byte(0), f.regs[regTempCfg])
}
