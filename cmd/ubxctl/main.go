// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"gitlab.com/postmarketOS/assettracker/internal/gnss"
	"gitlab.com/postmarketOS/assettracker/internal/transport"
	"gitlab.com/postmarketOS/assettracker/internal/ubx"
)

func usage() {
	flag.CommandLine.Usage()
}

func main() {
	var devPath string
	flag.StringVar(&devPath, "d", "/dev/ttyACM0", "Path to the receiver's serial device")
	var baud int
	flag.IntVar(&baud, "b", 9600, "Baud rate of the serial device")
	var i2cBus string
	flag.StringVar(&i2cBus, "i", "", "Talk to the receiver over this I2C bus instead of a serial device")
	var i2cAddr uint
	flag.UintVar(&i2cAddr, "a", transport.DefaultDDCAddr, "I2C address of the receiver")
	var timeout time.Duration
	flag.DurationVar(&timeout, "t", 3*time.Second, "How long to wait for the receiver to answer")
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Enable debug logging.")

	var help bool
	flag.BoolVar(&help, "h", false, "Print help and quit.")

	flag.Usage = func() {
		fmt.Println("usage: ubxctl [OPTION...] COMMAND ")
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println("Commands:")
		fmt.Printf("  %-24s\t%s\n", "antenna internal|external", "Select the antenna.")
		fmt.Printf("  %-24s\t%s\n", "reset hot|warm|cold", "Restart the receiver.")
		fmt.Printf("  %-24s\t%s\n", "poll <class> <id>", "Poll a message and print its payload.")
		fmt.Printf("  %-24s\t%s\n", "rate <NMEA-ID> <rate>", "Set the output rate of an NMEA message, 0 disables it.")
		fmt.Printf("  %-24s\t%s\n", "ackaiding", "Acknowledge assistance data with MGA-ACK.")
		fmt.Printf("  %-24s\t%s\n", "extint on|off", "Enter backup mode while EXTINT0 is low.")
		fmt.Printf("  %-24s\t%s\n", "timepulse-off", "Disable TIMEPULSE and release the pin.")
	}

	flag.Parse()

	if help || flag.NArg() == 0 {
		usage()
		return
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatal(err)
		}
	}

	var port transport.Transport
	if i2cBus != "" {
		if _, err := host.Init(); err != nil {
			log.Fatal(err)
		}
		bus, err := i2creg.Open(i2cBus)
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Close()
		port = transport.NewDDC(bus, uint16(i2cAddr))
	} else {
		s, err := transport.OpenSerial(devPath, baud, transport.DefaultReadTimeout)
		if err != nil {
			log.Fatal(err)
		}
		port = s
	}
	defer port.Close()

	tracker := gnss.NewTracker(port, gnss.WithLogger(logger))
	ublox := gnss.NewUblox(tracker, nil, logger)
	tracker.AddDecoder(ublox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := tracker.Run(ctx); err != nil {
			log.Fatal(err)
		}
	}()

	if err := runCommand(ctx, ublox, timeout, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid argument %q: %w", s, err)
	}
	return uint8(v), nil
}

func runCommand(ctx context.Context, u *gnss.Ublox, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch cmd := args[0]; cmd {
	case "antenna":
		switch arg(1) {
		case "internal":
			return u.SetAntenna(false)
		case "external":
			return u.SetAntenna(true)
		}
	case "reset":
		starts := map[string]ubx.StartType{
			"hot":  ubx.HotStart,
			"warm": ubx.WarmStart,
			"cold": ubx.ColdStart,
		}
		if start, ok := starts[arg(1)]; ok {
			return u.ResetReceiver(start, ubx.ResetSoftware)
		}
	case "poll":
		if len(args) < 3 {
			break
		}
		class, err := parseUint8(args[1])
		if err != nil {
			return err
		}
		id, err := parseUint8(args[2])
		if err != nil {
			return err
		}
		m, err := u.Poll(ctx, class, id)
		if err != nil {
			return err
		}
		fmt.Printf("0x%02X 0x%02X (%d bytes): % X\n", class, id, m.PayloadLen(), m.Payload())
		return nil
	case "rate":
		if len(args) < 3 {
			break
		}
		rate, err := parseUint8(args[2])
		if err != nil {
			return err
		}
		return u.SetNMEARate(args[1], rate)
	case "ackaiding":
		return u.SendWithAck(ctx, ubx.AckAiding())
	case "extint":
		switch arg(1) {
		case "on":
			return u.EnableExtIntBackup(ctx, true)
		case "off":
			return u.EnableExtIntBackup(ctx, false)
		}
	case "timepulse-off":
		return u.DisableTimePulse(ctx)
	}

	usage()
	return fmt.Errorf("invalid command: %q", args)
}
