// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exports decoder statistics and fix state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/gnss"
	"gitlab.com/postmarketOS/assettracker/internal/nmea"
	"gitlab.com/postmarketOS/assettracker/internal/ubx"
)

const namespace = "assettracker"

type ParserStats interface {
	Stats() nmea.Stats
}

type DecoderStats interface {
	Stats() ubx.Stats
}

type FixSource interface {
	Fix() gnss.Fix
}

// Collector reads its sources on every scrape. Any source may be nil.
type Collector struct {
	parser  ParserStats
	decoder DecoderStats
	fix     FixSource

	nmeaChars    *prometheus.Desc
	nmeaWithFix  *prometheus.Desc
	nmeaPassed   *prometheus.Desc
	nmeaFailed   *prometheus.Desc
	ubxBytes     *prometheus.Desc
	ubxMessages  *prometheus.Desc
	ubxChecksum  *prometheus.Desc
	ubxFraming   *prometheus.Desc
	ubxOversize  *prometheus.Desc
	fixValid     *prometheus.Desc
	fixAge       *prometheus.Desc
	fixSats      *prometheus.Desc
	fixHDOP      *prometheus.Desc
	fixAccuracyM *prometheus.Desc
}

func NewCollector(parser ParserStats, decoder DecoderStats, fix FixSource) *Collector {
	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &Collector{
		parser:  parser,
		decoder: decoder,
		fix:     fix,

		nmeaChars:    desc("nmea", "chars_processed_total", "Characters fed to the NMEA parser."),
		nmeaWithFix:  desc("nmea", "sentences_with_fix_total", "Valid RMC and GGA sentences reporting a fix."),
		nmeaPassed:   desc("nmea", "checksum_passed_total", "NMEA sentences with a valid checksum."),
		nmeaFailed:   desc("nmea", "checksum_failed_total", "NMEA sentences with a bad checksum."),
		ubxBytes:     desc("ubx", "bytes_total", "Bytes fed to the UBX decoder."),
		ubxMessages:  desc("ubx", "messages_total", "Valid UBX frames decoded."),
		ubxChecksum:  desc("ubx", "checksum_errors_total", "UBX frames with a bad checksum."),
		ubxFraming:   desc("ubx", "framing_errors_total", "UBX headers with a bad sync or length."),
		ubxOversize:  desc("ubx", "oversize_frames_total", "UBX frames larger than the decode buffer."),
		fixValid:     desc("fix", "valid", "1 if the receiver reports a valid location."),
		fixAge:       desc("fix", "age_seconds", "Time since the location was last committed."),
		fixSats:      desc("fix", "satellites", "Satellites used in the fix."),
		fixHDOP:      desc("fix", "hdop", "Horizontal dilution of precision."),
		fixAccuracyM: desc("fix", "accuracy_meters", "Estimated horizontal accuracy."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint32) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	if c.parser != nil {
		s := c.parser.Stats()
		counter(c.nmeaChars, s.CharsProcessed)
		counter(c.nmeaWithFix, s.SentencesWithFix)
		counter(c.nmeaPassed, s.PassedChecksum)
		counter(c.nmeaFailed, s.FailedChecksum)
	}
	if c.decoder != nil {
		s := c.decoder.Stats()
		counter(c.ubxBytes, s.Bytes)
		counter(c.ubxMessages, s.Messages)
		counter(c.ubxChecksum, s.ChecksumErrors)
		counter(c.ubxFraming, s.FramingErrors)
		counter(c.ubxOversize, s.OversizeFrames)
	}
	if c.fix != nil {
		f := c.fix.Fix()
		valid := 0.0
		if f.Valid {
			valid = 1
			gauge(c.fixAge, float64(f.AgeMs)/1000)
		}
		gauge(c.fixValid, valid)
		gauge(c.fixSats, float64(f.Satellites))
		gauge(c.fixHDOP, f.HDOP)
		gauge(c.fixAccuracyM, f.AccuracyM)
	}
}

// Serve exposes reg on /metrics and a liveness check on /healthz until ctx
// is cancelled.
func Serve(ctx context.Context, listen string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", zap.String("listen", listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics.Serve: %w", err)
	}
	return nil
}
