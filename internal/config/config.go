// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml"
)

const DefaultPath = "/etc/assettracker.conf"

type Device struct {
	// serial or i2c
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	BaudRate int    `toml:"baud"`
	I2CBus   string `toml:"i2c_bus"`
	I2CAddr  uint16 `toml:"i2c_address"`
}

type GPS struct {
	MaxFixAgeMs     int     `toml:"max_fix_age_ms"`
	AccuracyFactor  float64 `toml:"accuracy_factor"`
	UBXBufferSize   int     `toml:"ubx_buffer_size"`
	ExternalAntenna bool    `toml:"external_antenna"`
}

func (g GPS) MaxFixAge() time.Duration {
	return time.Duration(g.MaxFixAgeMs) * time.Millisecond
}

type Server struct {
	Socket     string `toml:"socket"`
	OwnerGroup string `toml:"group"`
}

type MQTT struct {
	Enable     bool   `toml:"enable"`
	Broker     string `toml:"broker"`
	ClientID   string `toml:"client_id"`
	Topic      string `toml:"topic"`
	IntervalMs int    `toml:"interval_ms"`
}

func (m MQTT) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

type Metrics struct {
	Enable bool   `toml:"enable"`
	Listen string `toml:"listen"`
}

type Accel struct {
	Enable bool `toml:"enable"`
	// i2c or spi
	Bus     string `toml:"bus"`
	Device  string `toml:"device"`
	Address uint16 `toml:"address"`
	RateHz  int    `toml:"rate_hz"`
}

type Config struct {
	Device  Device  `toml:"device"`
	GPS     GPS     `toml:"gps"`
	Server  Server  `toml:"server"`
	MQTT    MQTT    `toml:"mqtt"`
	Metrics Metrics `toml:"metrics"`
	Accel   Accel   `toml:"accel"`
}

func Parse(file string) (c *Config, err error) {
	contents, err := os.ReadFile(file)
	if err != nil {
		err = fmt.Errorf("config.Parse(): %w", err)
		return
	}
	return Load(contents)
}

// Load decodes TOML contents, fills in defaults and validates the result.
func Load(contents []byte) (c *Config, err error) {
	c = &Config{}

	if err = toml.Unmarshal(contents, c); err != nil {
		err = fmt.Errorf("config.Load(): %w", err)
		return
	}

	c.setDefaults()
	if err = c.Validate(); err != nil {
		err = fmt.Errorf("config.Load(): %w", err)
	}
	return
}

func (c *Config) setDefaults() {
	setDefault(&c.Device.Driver, "serial")
	setDefault(&c.Device.Path, "/dev/ttyACM0")
	setDefault(&c.Device.BaudRate, 9600)
	setDefault(&c.Device.I2CBus, "1")
	setDefault(&c.Device.I2CAddr, 0x42)

	setDefault(&c.GPS.MaxFixAgeMs, 10000)
	setDefault(&c.GPS.AccuracyFactor, 1.8)
	setDefault(&c.GPS.UBXBufferSize, 1024)

	setDefault(&c.Server.Socket, "/run/assettracker.sock")
	setDefault(&c.Server.OwnerGroup, "geoclue")

	setDefault(&c.MQTT.Broker, "tcp://localhost:1883")
	setDefault(&c.MQTT.ClientID, "assettracker")
	setDefault(&c.MQTT.Topic, "assettracker/fix")
	setDefault(&c.MQTT.IntervalMs, 1000)

	setDefault(&c.Metrics.Listen, ":9110")

	setDefault(&c.Accel.Bus, "i2c")
	setDefault(&c.Accel.Device, "1")
	setDefault(&c.Accel.Address, 0x18)
	setDefault(&c.Accel.RateHz, 10)
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func (c *Config) Validate() error {
	switch c.Device.Driver {
	case "serial", "i2c":
	default:
		return fmt.Errorf("config.Validate(): unknown device driver %q", c.Device.Driver)
	}
	if c.Device.BaudRate < 0 {
		return fmt.Errorf("config.Validate(): invalid baud rate %d", c.Device.BaudRate)
	}
	if c.GPS.MaxFixAgeMs < 0 {
		return fmt.Errorf("config.Validate(): invalid max_fix_age_ms %d", c.GPS.MaxFixAgeMs)
	}
	if c.GPS.AccuracyFactor < 0 {
		return fmt.Errorf("config.Validate(): invalid accuracy_factor %g", c.GPS.AccuracyFactor)
	}
	// must hold the largest frame we poll for (MON-HW, 60 bytes) plus framing
	if c.GPS.UBXBufferSize < 68 {
		return fmt.Errorf("config.Validate(): ubx_buffer_size %d is too small", c.GPS.UBXBufferSize)
	}
	if c.MQTT.Enable && c.MQTT.IntervalMs < 0 {
		return fmt.Errorf("config.Validate(): invalid mqtt interval_ms %d", c.MQTT.IntervalMs)
	}
	if c.Accel.Enable {
		switch c.Accel.Bus {
		case "i2c", "spi":
		default:
			return fmt.Errorf("config.Validate(): unknown accel bus %q", c.Accel.Bus)
		}
	}
	return nil
}
