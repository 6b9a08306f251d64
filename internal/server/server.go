// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"

	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/pool"
)

// Server accepts clients on a unix socket and registers them with a pool.
// Clients only receive; anything they send is discarded.
type Server struct {
	socket    string
	sockGroup string
	connPool  *pool.Pool
	log       *zap.Logger
}

// New creates a Server. If sockGroup is empty the socket keeps the group of
// the running process.
func New(socket string, sockGroup string, connPool *pool.Pool, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socket:    socket,
		sockGroup: sockGroup,
		connPool:  connPool,
		log:       log,
	}
}

func (s *Server) listen() (sock net.Listener, err error) {
	if err = os.RemoveAll(s.socket); err != nil {
		return
	}
	if sock, err = net.Listen("unix", s.socket); err != nil {
		return
	}
	defer func() {
		if err != nil {
			sock.Close()
		}
	}()

	if err = os.Chmod(s.socket, 0660); err != nil {
		return
	}
	if s.sockGroup == "" {
		return
	}

	group, err := user.LookupGroup(s.sockGroup)
	if err != nil {
		return
	}
	gid, err := strconv.ParseInt(group.Gid, 10, 32)
	if err != nil {
		return
	}
	err = os.Chown(s.socket, -1, int(gid))
	return
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	sock, err := s.listen()
	if err != nil {
		return fmt.Errorf("server/Server.Serve: %w", err)
	}
	defer os.Remove(s.socket)

	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	s.log.Info("accepting connections", zap.String("socket", s.socket))
	for {
		conn, err := sock.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server/Server.Serve: %w", err)
		}

		client := pool.NewClient(conn)
		select {
		case s.connPool.Register <- client:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
		s.log.Info("client connected", zap.Int("clients", s.connPool.Count()+1))

		go s.discard(ctx, client)
		go s.clientConnection(ctx, client)
	}
}

func (s *Server) unregister(ctx context.Context, c *pool.Client) {
	select {
	case s.connPool.Unregister <- c:
	case <-ctx.Done():
	}
}

// discard drains the client's input and unregisters it on hangup.
func (s *Server) discard(ctx context.Context, c *pool.Client) {
	_, _ = io.Copy(io.Discard, c.Conn)
	s.unregister(ctx, c)
}

// Routine run for each client connection
func (s *Server) clientConnection(ctx context.Context, c *pool.Client) {
	defer c.Conn.Close()

	for msg := range c.Send {
		if _, err := c.Conn.Write(msg); err != nil {
			s.log.Debug("client write failed", zap.Error(err))
			s.unregister(ctx, c)
			return
		}
	}
	s.log.Info("client disconnected")
}
