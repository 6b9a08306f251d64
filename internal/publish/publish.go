// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package publish sends fix and accelerometer snapshots to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/accel"
	"gitlab.com/postmarketOS/assettracker/internal/gnss"
)

const (
	publishTimeout = 5 * time.Second
	disconnectMs   = 250
)

// Client is the part of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type FixSource interface {
	Fix() gnss.Fix
}

// Connect opens a connection to broker that reconnects on its own.
func Connect(broker, clientID string) (c mqtt.Client, err error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(publishTimeout)

	c = mqtt.NewClient(opts)
	if token := c.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		err = fmt.Errorf("publish.Connect: %s: %w", broker, token.Error())
	}
	return
}

// Disconnect closes c after letting in-flight messages finish.
func Disconnect(c mqtt.Client) {
	c.Disconnect(disconnectMs)
}

type AccelPayload struct {
	X         int16     `json:"x"`
	Y         int16     `json:"y"`
	Z         int16     `json:"z"`
	Magnitude float64   `json:"magnitude"`
	Time      time.Time `json:"time"`
}

// Publisher sends retained JSON messages below a base topic: fixes go to the
// topic itself and accelerometer samples to topic/accel.
type Publisher struct {
	client Client
	topic  string
	log    *zap.Logger
	now    func() time.Time
}

func New(client Client, topic string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, log: log, now: time.Now}
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	return token.Error()
}

func (p *Publisher) Fix(f gnss.Fix) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("publish/Publisher.Fix: %w", err)
	}
	if err = p.publish(p.topic, b); err != nil {
		return fmt.Errorf("publish/Publisher.Fix: %w", err)
	}
	return nil
}

func (p *Publisher) Accel(s accel.Sample) error {
	b, err := json.Marshal(AccelPayload{
		X:         s.X,
		Y:         s.Y,
		Z:         s.Z,
		Magnitude: s.Magnitude(),
		Time:      p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish/Publisher.Accel: %w", err)
	}
	if err = p.publish(p.topic+"/accel", b); err != nil {
		return fmt.Errorf("publish/Publisher.Accel: %w", err)
	}
	return nil
}

// Run publishes the current fix every interval until ctx is cancelled.
// Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, src FixSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Fix(src.Fix()); err != nil {
				p.log.Warn("mqtt publish failed", zap.Error(err))
			}
		}
	}
}
