// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNak is returned when the receiver rejects a command with ACK-NAK.
	ErrNak = errors.New("ubx: command not acknowledged")
	// ErrTimeout is returned when no reply arrives before the context is done.
	ErrTimeout = fmt.Errorf("ubx: no response: %w", context.DeadlineExceeded)
)
