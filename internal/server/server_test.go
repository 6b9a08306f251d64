// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/postmarketOS/assettracker/internal/pool"
)

func TestServer(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "at.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pool.New(nil)
	go p.Start(ctx)

	srv := New(socket, "", p, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", socket)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	defer conn.Close()

	st, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0660), st.Mode().Perm())

	require.Eventually(t, func() bool { return p.Count() == 1 }, 5*time.Second, time.Millisecond)

	p.Broadcast <- []byte("{\"valid\":true}\n")
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"valid\":true}\n", line)

	// hangup unregisters the client
	conn.Close()
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
	_, err = os.Stat(socket)
	assert.True(t, os.IsNotExist(err))
}

func TestServerUnknownGroup(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "at.sock")
	srv := New(socket, "no-such-group-assettracker", pool.New(nil), nil)
	err := srv.Serve(context.Background())
	assert.Error(t, err)
}
