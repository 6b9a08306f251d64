// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"gitlab.com/postmarketOS/assettracker/internal/accel"
	"gitlab.com/postmarketOS/assettracker/internal/config"
	"gitlab.com/postmarketOS/assettracker/internal/publish"
	"gitlab.com/postmarketOS/assettracker/internal/transport"
)

type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
}

func openReceiver(conf config.Device) (port transport.Transport, cl closers, err error) {
	switch conf.Driver {
	case "serial":
		var s *transport.Serial
		if s, err = transport.OpenSerial(conf.Path, conf.BaudRate, transport.DefaultReadTimeout); err != nil {
			return
		}
		return s, closers{s}, nil
	case "i2c":
		if _, err = host.Init(); err != nil {
			err = fmt.Errorf("openReceiver(): periph host init: %w", err)
			return
		}
		bus, err := i2creg.Open(conf.I2CBus)
		if err != nil {
			return nil, nil, fmt.Errorf("openReceiver(): %w", err)
		}
		d := transport.NewDDC(bus, conf.I2CAddr)
		return d, closers{bus, d}, nil
	}
	return nil, nil, fmt.Errorf("openReceiver(): unknown driver %q", conf.Driver)
}

func openAccel(conf config.Accel) (d *accel.Device, cl closers, err error) {
	if _, err = host.Init(); err != nil {
		err = fmt.Errorf("openAccel(): periph host init: %w", err)
		return
	}

	var regs accel.RegisterIO
	switch conf.Bus {
	case "i2c":
		bus, err := i2creg.Open(conf.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("openAccel(): %w", err)
		}
		cl = append(cl, bus)
		regs = accel.NewI2C(bus, conf.Address)
	case "spi":
		port, err := spireg.Open(conf.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("openAccel(): %w", err)
		}
		cl = append(cl, port)
		if regs, err = accel.NewSPI(port); err != nil {
			cl.Close()
			return nil, nil, fmt.Errorf("openAccel(): %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("openAccel(): unknown bus %q", conf.Bus)
	}

	if d, err = accel.New(regs); err == nil {
		err = d.Setup(accel.AccelMode(accel.RateFor(conf.RateHz)))
	}
	if err != nil {
		cl.Close()
		return nil, nil, fmt.Errorf("openAccel(): %w", err)
	}
	return d, cl, nil
}

// sampleAccel reads the accelerometer at rateHz and publishes each new
// sample if pub is set.
func sampleAccel(ctx context.Context, d *accel.Device, rateHz int, pub *publish.Publisher, log *zap.Logger) {
	if rateHz <= 0 {
		rateHz = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(rateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s, ok, err := d.Sample()
		if err != nil {
			log.Warn("accelerometer read failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		log.Debug("accelerometer sample",
			zap.Int16("x", s.X), zap.Int16("y", s.Y), zap.Int16("z", s.Z),
			zap.Float64("magnitude", s.Magnitude()))
		if pub == nil {
			continue
		}
		if err := pub.Accel(s); err != nil {
			log.Warn("mqtt publish failed", zap.Error(err))
		}
	}
}
