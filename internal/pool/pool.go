// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package pool

import (
	"context"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// ClientQueue is how many messages a client may fall behind before new
// messages are dropped for it.
const ClientQueue = 16

type Client struct {
	Send chan []byte
	Conn net.Conn
}

func NewClient(conn net.Conn) *Client {
	return &Client{Send: make(chan []byte, ClientQueue), Conn: conn}
}

// Pool fans messages out to the registered clients. All bookkeeping happens
// on the goroutine running Start; a client's Send channel is closed when it
// is unregistered or the pool stops.
type Pool struct {
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte

	clients map[*Client]bool
	count   atomic.Int32
	log     *zap.Logger
}

func New(log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Count returns the number of registered clients.
func (p *Pool) Count() int {
	return int(p.count.Load())
}

func (p *Pool) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range p.clients {
				delete(p.clients, c)
				close(c.Send)
			}
			p.count.Store(0)
			return
		case c := <-p.Register:
			p.clients[c] = true
			p.count.Store(int32(len(p.clients)))
		case c := <-p.Unregister:
			if p.clients[c] {
				delete(p.clients, c)
				close(c.Send)
				p.count.Store(int32(len(p.clients)))
			}
		case msg := <-p.Broadcast:
			for c := range p.clients {
				select {
				case c.Send <- msg:
				default:
					p.log.Debug("client queue full, dropping message")
				}
			}
		}
	}
}
