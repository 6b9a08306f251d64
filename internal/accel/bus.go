// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package accel

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// RegisterIO reads and writes runs of consecutive registers. Implementations
// set the bus-specific auto-increment bit themselves.
type RegisterIO interface {
	ReadRegs(reg byte, dst []byte) error
	WriteRegs(reg byte, src []byte) error
}

const (
	// i2c address with SA0 low; SA0 high adds 1
	DefaultI2CAddr = 0x18

	i2cIncrement = 0x80

	spiRead      = 0x80
	spiIncrement = 0x40
	SPIFrequency = 10 * physic.MegaHertz
)

// I2C talks to the accelerometer over an I2C bus.
type I2C struct {
	dev *i2c.Dev
}

func NewI2C(bus i2c.Bus, addr uint16) *I2C {
	return &I2C{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (b *I2C) ReadRegs(reg byte, dst []byte) (err error) {
	if len(dst) > 1 {
		reg |= i2cIncrement
	}
	if err = b.dev.Tx([]byte{reg}, dst); err != nil {
		err = fmt.Errorf("accel/I2C.ReadRegs: reg 0x%02x: %w", reg, err)
	}
	return
}

func (b *I2C) WriteRegs(reg byte, src []byte) (err error) {
	if len(src) > 1 {
		reg |= i2cIncrement
	}
	w := append([]byte{reg}, src...)
	if err = b.dev.Tx(w, nil); err != nil {
		err = fmt.Errorf("accel/I2C.WriteRegs: reg 0x%02x: %w", reg, err)
	}
	return
}

func (b *I2C) String() string {
	return b.dev.String()
}

// SPI talks to the accelerometer over a 4-wire SPI connection.
type SPI struct {
	conn spi.Conn
}

// NewSPI connects to port in mode 0 at SPIFrequency.
func NewSPI(port spi.Port) (s *SPI, err error) {
	conn, err := port.Connect(SPIFrequency, spi.Mode0, 8)
	if err != nil {
		err = fmt.Errorf("accel.NewSPI: %w", err)
		return
	}
	return &SPI{conn: conn}, nil
}

func (b *SPI) ReadRegs(reg byte, dst []byte) (err error) {
	cmd := reg | spiRead
	if len(dst) > 1 {
		cmd |= spiIncrement
	}
	w := make([]byte, len(dst)+1)
	r := make([]byte, len(dst)+1)
	w[0] = cmd
	if err = b.conn.Tx(w, r); err != nil {
		return fmt.Errorf("accel/SPI.ReadRegs: reg 0x%02x: %w", reg, err)
	}
	copy(dst, r[1:])
	return nil
}

func (b *SPI) WriteRegs(reg byte, src []byte) (err error) {
	cmd := reg
	if len(src) > 1 {
		cmd |= spiIncrement
	}
	w := append([]byte{cmd}, src...)
	if err = b.conn.Tx(w, make([]byte, len(w))); err != nil {
		err = fmt.Errorf("accel/SPI.WriteRegs: reg 0x%02x: %w", reg, err)
	}
	return
}

func (b *SPI) String() string {
	return b.conn.String()
}
