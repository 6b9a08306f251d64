// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/config"
	"gitlab.com/postmarketOS/assettracker/internal/gnss"
	"gitlab.com/postmarketOS/assettracker/internal/metrics"
	"gitlab.com/postmarketOS/assettracker/internal/pool"
	"gitlab.com/postmarketOS/assettracker/internal/publish"
	"gitlab.com/postmarketOS/assettracker/internal/server"
	"gitlab.com/postmarketOS/assettracker/internal/ubx"
)

func usage() {
	flag.CommandLine.Usage()
}

func main() {
	var confFile string
	flag.StringVar(&confFile, "c", config.DefaultPath, "Configuration file to use.")
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Enable debug logging.")
	var help bool
	flag.BoolVar(&help, "h", false, "Print help and quit.")

	flag.Usage = func() {
		fmt.Println("usage: tracker [OPTION...]")
		fmt.Println("Reads fixes from a GNSS receiver and shares them with local clients, MQTT and Prometheus.")
		fmt.Println("Options:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if help {
		usage()
		return
	}

	conf, err := config.Parse(confFile)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(conf, logger); err != nil {
		logger.Fatal("tracker stopped", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(conf *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port, portClosers, err := openReceiver(conf.Device)
	if err != nil {
		return fmt.Errorf("run(): %w", err)
	}
	defer portClosers.Close()

	tracker := gnss.NewTracker(port,
		gnss.WithLogger(logger),
		gnss.WithMaxFixAge(conf.GPS.MaxFixAge()),
		gnss.WithAccuracyFactor(conf.GPS.AccuracyFactor))
	dec := ubx.NewDecoder(
		ubx.WithPayloadCap(conf.GPS.UBXBufferSize-ubx.FrameOverhead),
		ubx.WithLogger(logger))
	ublox := gnss.NewUblox(tracker, dec, logger)
	tracker.AddDecoder(ublox)

	if err := ublox.SetAntenna(conf.GPS.ExternalAntenna); err != nil {
		return fmt.Errorf("run(): %w", err)
	}

	// fatal errors from any of the goroutines below stop the daemon
	errc := make(chan error, 4)
	fail := func(err error) {
		if err != nil && ctx.Err() == nil {
			errc <- err
			cancel()
		}
	}

	connPool := pool.New(logger)
	go connPool.Start(ctx)
	srv := server.New(conf.Server.Socket, conf.Server.OwnerGroup, connPool, logger)
	go func() { fail(srv.Serve(ctx)) }()

	// local clients get a fix after every batch of valid sentences
	tracker.OnSentence(func() {
		if connPool.Count() == 0 {
			return
		}
		b, err := tracker.Fix().Bytes()
		if err != nil {
			logger.Warn("encoding fix failed", zap.Error(err))
			return
		}
		select {
		case connPool.Broadcast <- b:
		case <-ctx.Done():
		}
	})

	var pub *publish.Publisher
	if conf.MQTT.Enable {
		client, err := publish.Connect(conf.MQTT.Broker, conf.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("run(): %w", err)
		}
		defer publish.Disconnect(client)
		pub = publish.New(client, conf.MQTT.Topic, logger)
		go pub.Run(ctx, tracker, conf.MQTT.Interval())
	}

	if conf.Metrics.Enable {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			metrics.NewCollector(tracker.Parser(), dec, tracker),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		go func() { fail(metrics.Serve(ctx, conf.Metrics.Listen, reg, logger)) }()
	}

	if conf.Accel.Enable {
		d, accelClosers, err := openAccel(conf.Accel)
		if err != nil {
			return fmt.Errorf("run(): %w", err)
		}
		defer accelClosers.Close()
		go sampleAccel(ctx, d, conf.Accel.RateHz, pub, logger)
	}

	go func() { fail(tracker.Run(ctx)) }()

	<-ctx.Done()
	select {
	case err := <-errc:
		return err
	default:
		logger.Info("shutting down")
		return nil
	}
}
