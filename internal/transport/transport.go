// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport moves raw bytes to and from a GNSS receiver.
package transport

import (
	"errors"
	"io"
)

var ErrClosed = errors.New("transport: closed")

// Transport is a byte link to a receiver. Read returns the bytes that are
// available now and may return 0, nil when there are none. Write sends all
// of p or fails; concurrent writers never interleave.
type Transport interface {
	io.ReadWriteCloser
	String() string
}
