// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package accel drives the LIS3DH three-axis accelerometer.
package accel

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrWhoAmI = errors.New("accel: LIS3DH not found")

var sleep = time.Sleep

const (
	whoAmI         = 0x33
	whoAmIAttempts = 10

	regOutADC3L  = 0x0C
	regWhoAmI    = 0x0F
	regTempCfg   = 0x1F
	regCtrl1     = 0x20
	regCtrl2     = 0x21
	regCtrl3     = 0x22
	regCtrl4     = 0x23
	regCtrl5     = 0x24
	regCtrl6     = 0x25
	regReference = 0x26
	regStatus    = 0x27
	regOutXL     = 0x28
	regFIFOCtrl  = 0x2E
	regInt1Cfg   = 0x30
	regInt1Src   = 0x31
	regInt1Ths   = 0x32
	regInt1Dur   = 0x33

	statusZYXDA = 0x08

	ctrl1LowPower = 0x08
	ctrl1Axes     = 0x07 // Z, Y and X enable

	ctrl2FDS   = 0x08
	ctrl2HPIS1 = 0x01

	ctrl3I1Int1 = 0x40

	ctrl5LIRInt1 = 0x08

	int1CfgAOI  = 0x80
	int1Cfg6D   = 0x40
	int1CfgAll  = 0x3F
	int1CfgXYHi = 0x0A

	int1SrcIA = 0x40
	int1SrcZH = 0x20
	int1SrcZL = 0x10
	int1SrcYH = 0x08
	int1SrcYL = 0x04
	int1SrcXH = 0x02
	int1SrcXL = 0x01

	tempCfgEnable = 0xC0 // ADC_PD | TEMP_EN
)

// Rate is an output data rate, as written to the ODR bits of CTRL_REG1.
type Rate uint8

const (
	Rate1Hz   Rate = 0x10
	Rate10Hz  Rate = 0x20
	Rate25Hz  Rate = 0x30
	Rate50Hz  Rate = 0x40
	Rate100Hz Rate = 0x50
	Rate200Hz Rate = 0x60
	Rate400Hz Rate = 0x70
)

// RateFor returns the slowest rate of at least hz, capped at 400 Hz.
func RateFor(hz int) Rate {
	for _, r := range []struct {
		hz   int
		rate Rate
	}{
		{1, Rate1Hz}, {10, Rate10Hz}, {25, Rate25Hz}, {50, Rate50Hz},
		{100, Rate100Hz}, {200, Rate200Hz},
	} {
		if hz <= r.hz {
			return r.rate
		}
	}
	return Rate400Hz
}

// Config holds the control register values written by Setup.
type Config struct {
	Ctrl1, Ctrl2, Ctrl3, Ctrl4, Ctrl5, Ctrl6 uint8

	// SetReference reads REFERENCE after setup to reset the high-pass filter.
	SetReference bool
	Int1Ths      uint8
	Int1Duration uint8
	Int1Cfg      uint8
	FIFOCtrl     uint8
}

// AccelMode samples all three axes at rate with no interrupts.
func AccelMode(rate Rate) Config {
	return Config{Ctrl1: uint8(rate) | ctrl1Axes}
}

// LowPowerWakeMode runs at 10 Hz in low power mode and raises INT1 when
// movement on X or Y exceeds threshold.
func LowPowerWakeMode(threshold uint8) Config {
	return Config{
		Ctrl1:        uint8(Rate10Hz) | ctrl1LowPower | ctrl1Axes,
		Ctrl2:        ctrl2FDS | ctrl2HPIS1,
		Ctrl3:        ctrl3I1Int1,
		Ctrl5:        ctrl5LIRInt1,
		SetReference: true,
		Int1Ths:      threshold,
		Int1Cfg:      int1CfgXYHi,
	}
}

// PositionInterrupt raises INT1 when the device settles in one of the six
// orientations.
func PositionInterrupt(threshold uint8) Config {
	return Config{
		Ctrl1:   uint8(Rate100Hz) | ctrl1Axes,
		Ctrl3:   ctrl3I1Int1,
		Int1Ths: threshold,
		Int1Cfg: int1CfgAOI | int1Cfg6D | int1CfgAll,
	}
}

// Sample is one raw reading, left-justified 16-bit per axis.
type Sample struct {
	X, Y, Z int16
}

// Magnitude is the length of the acceleration vector in raw units.
func (s Sample) Magnitude() float64 {
	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

// Position is the orientation reported by the 6D position interrupt.
type Position uint8

const (
	PositionUnknown Position = iota
	PositionYLow
	PositionXHigh
	PositionXLow
	PositionYHigh
	PositionFlat
	PositionUpsideDown
)

type Device struct {
	io      RegisterIO
	int1Cfg uint8
}

// New looks for a LIS3DH on io. It returns ErrWhoAmI if the identity
// register never reads back as expected.
func New(io RegisterIO) (d *Device, err error) {
	d = &Device{io: io}
	for i := 0; i < whoAmIAttempts; i++ {
		var id uint8
		if id, err = d.readReg(regWhoAmI); err == nil && id == whoAmI {
			return d, nil
		}
		sleep(time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("accel.New: %w: %w", ErrWhoAmI, err)
	}
	return nil, fmt.Errorf("accel.New: %w", ErrWhoAmI)
}

func (d *Device) readReg(reg byte) (uint8, error) {
	var b [1]byte
	err := d.io.ReadRegs(reg, b[:])
	return b[0], err
}

func (d *Device) writeReg(reg, v byte) error {
	return d.io.WriteRegs(reg, []byte{v})
}

// Setup writes c to the control registers. The INT1 configuration is only
// written when c routes INT1 to the interrupt pin.
func (d *Device) Setup(c Config) (err error) {
	writes := []struct{ reg, v byte }{
		{regCtrl1, c.Ctrl1},
		{regCtrl2, c.Ctrl2},
		{regCtrl3, c.Ctrl3},
		{regCtrl4, c.Ctrl4},
		{regCtrl5, c.Ctrl5},
		{regCtrl6, c.Ctrl6},
	}
	for _, w := range writes {
		if err = d.writeReg(w.reg, w.v); err != nil {
			return fmt.Errorf("accel/Device.Setup: %w", err)
		}
	}
	if c.SetReference {
		if _, err = d.readReg(regReference); err != nil {
			return fmt.Errorf("accel/Device.Setup: %w", err)
		}
	}
	if err = d.writeReg(regFIFOCtrl, c.FIFOCtrl); err != nil {
		return fmt.Errorf("accel/Device.Setup: %w", err)
	}

	if c.Ctrl3&ctrl3I1Int1 == 0 {
		return nil
	}
	d.int1Cfg = c.Int1Cfg
	writes = []struct{ reg, v byte }{
		{regInt1Ths, c.Int1Ths},
		{regInt1Dur, c.Int1Duration},
		{regInt1Cfg, c.Int1Cfg},
	}
	for _, w := range writes {
		if err = d.writeReg(w.reg, w.v); err != nil {
			return fmt.Errorf("accel/Device.Setup: %w", err)
		}
	}
	// reading INT1_SRC clears a latched interrupt
	if _, err = d.readReg(regInt1Src); err != nil {
		err = fmt.Errorf("accel/Device.Setup: %w", err)
	}
	return
}

// Sample reads the latest X, Y and Z values. ok is false if no new data was
// ready.
func (d *Device) Sample() (s Sample, ok bool, err error) {
	status, err := d.readReg(regStatus)
	if err != nil {
		err = fmt.Errorf("accel/Device.Sample: %w", err)
		return
	}
	if status&statusZYXDA == 0 {
		return
	}
	var b [6]byte
	if err = d.io.ReadRegs(regOutXL, b[:]); err != nil {
		err = fmt.Errorf("accel/Device.Sample: %w", err)
		return
	}
	s = Sample{
		X: int16(uint16(b[0]) | uint16(b[1])<<8),
		Y: int16(uint16(b[2]) | uint16(b[3])<<8),
		Z: int16(uint16(b[4]) | uint16(b[5])<<8),
	}
	return s, true, nil
}

// ClearInterrupt acknowledges INT1 and returns its source register.
func (d *Device) ClearInterrupt() (src uint8, err error) {
	if src, err = d.readReg(regInt1Src); err != nil {
		return 0, fmt.Errorf("accel/Device.ClearInterrupt: %w", err)
	}
	if err = d.writeReg(regInt1Cfg, d.int1Cfg); err != nil {
		err = fmt.Errorf("accel/Device.ClearInterrupt: %w", err)
	}
	return
}

// Position reads the 6D orientation latched by the position interrupt.
func (d *Device) Position() (Position, error) {
	src, err := d.readReg(regInt1Src)
	if err != nil {
		return PositionUnknown, fmt.Errorf("accel/Device.Position: %w", err)
	}
	if src&int1SrcIA == 0 {
		return PositionUnknown, nil
	}
	switch src &^ int1SrcIA {
	case int1SrcYL:
		return PositionYLow, nil
	case int1SrcXH:
		return PositionXHigh, nil
	case int1SrcXL:
		return PositionXLow, nil
	case int1SrcYH:
		return PositionYHigh, nil
	case int1SrcZH:
		return PositionFlat, nil
	case int1SrcZL:
		return PositionUpsideDown, nil
	}
	return PositionUnknown, nil
}

func (d *Device) EnableTemperature(enable bool) error {
	var v uint8
	if enable {
		v = tempCfgEnable
	}
	if err := d.writeReg(regTempCfg, v); err != nil {
		return fmt.Errorf("accel/Device.EnableTemperature: %w", err)
	}
	return nil
}

// Temperature returns the temperature change in degrees C relative to an
// uncalibrated, device-specific reference. EnableTemperature must be called
// first.
func (d *Device) Temperature() (int16, error) {
	var b [2]byte
	if err := d.io.ReadRegs(regOutADC3L, b[:]); err != nil {
		return 0, fmt.Errorf("accel/Device.Temperature: %w", err)
	}
	return int16(uint16(b[0])|uint16(b[1])<<8) / 256, nil
}
