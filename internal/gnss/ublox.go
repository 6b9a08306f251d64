// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package gnss

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"gitlab.com/postmarketOS/assettracker/internal/nmea"
	"gitlab.com/postmarketOS/assettracker/internal/ubx"
)

// Ublox controls a u-blox receiver. Replies are matched by a UBX decoder
// that must be fed the receiver's output, usually by adding the Ublox to a
// Tracker with AddDecoder. Commands go out through the Sender it was built
// with.
//
// The methods taking a context wait for the receiver to answer and so must
// not be called from the goroutine that feeds the decoder.
type Ublox struct {
	send Sender
	dec  *ubx.Decoder
	log  *zap.Logger
}

func NewUblox(send Sender, dec *ubx.Decoder, log *zap.Logger) *Ublox {
	if log == nil {
		log = zap.NewNop()
	}
	if dec == nil {
		dec = ubx.NewDecoder(ubx.WithLogger(log))
	}
	return &Ublox{send: send, dec: dec, log: log}
}

func (u *Ublox) Decoder() *ubx.Decoder {
	return u.dec
}

// Decode feeds one byte to the UBX decoder.
func (u *Ublox) Decode(b byte) bool {
	return u.dec.Decode(b)
}

// Send finalizes m and transmits it.
func (u *Ublox) Send(m *ubx.Message) (err error) {
	m.UpdateChecksum()
	if err = u.send.SendCommand(m.Bytes()); err != nil {
		err = fmt.Errorf("gnss/Ublox.Send: %w", err)
	}
	return
}

// SetAntenna selects the internal or external antenna (CFG-ANT).
func (u *Ublox) SetAntenna(external bool) error {
	return u.Send(ubx.Antenna(external))
}

// ResetReceiver sends CFG-RST. The receiver does not acknowledge it.
func (u *Ublox) ResetReceiver(start ubx.StartType, mode ubx.ResetMode) error {
	return u.Send(ubx.Reset(start, mode))
}

// EnableAckAiding makes the receiver acknowledge assistance data with
// MGA-ACK (CFG-NAVX5).
func (u *Ublox) EnableAckAiding() error {
	return u.Send(ubx.AckAiding())
}

// OnAidingAck calls fn for every MGA-ACK the receiver sends once
// EnableAckAiding is in effect. fn runs on the goroutine feeding the
// decoder. Remove the returned handler from Decoder to stop.
func (u *Ublox) OnAidingAck(fn func(a ubx.AidingAck)) *ubx.Handler {
	return u.dec.AddHandler(ubx.ClassMGA, ubx.IDMgaAck, func(m *ubx.Message) {
		a, ok := ubx.ParseAidingAck(m)
		if !ok {
			u.log.Warn("short MGA-ACK", zap.Int("len", m.PayloadLen()))
			return
		}
		if !a.Accepted {
			u.log.Info("assistance data rejected", zap.Uint8("msgID", a.MsgID), zap.Uint8("infoCode", a.InfoCode))
		}
		fn(a)
	}, ubx.Persistent)
}

// GetValue polls class and id and calls fn with a copy of the reply when it
// arrives. fn runs on the goroutine feeding the decoder and may send
// commands.
func (u *Ublox) GetValue(class, id uint8, fn func(m *ubx.Message)) (err error) {
	h := u.dec.AddHandler(class, id, func(m *ubx.Message) {
		fn(m.Clone())
	}, ubx.Once)

	if err = u.Send(ubx.Poll(class, id)); err != nil {
		u.dec.RemoveHandler(h)
		err = fmt.Errorf("gnss/Ublox.GetValue: %w", err)
	}
	return
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ubx.ErrTimeout
	}
	return ctx.Err()
}

// Poll requests class and id and waits for the reply.
func (u *Ublox) Poll(ctx context.Context, class, id uint8) (m *ubx.Message, err error) {
	ch := make(chan *ubx.Message, 1)
	h := u.dec.AddHandler(class, id, func(m *ubx.Message) {
		ch <- m.Clone()
	}, ubx.Once)

	if err = u.Send(ubx.Poll(class, id)); err != nil {
		u.dec.RemoveHandler(h)
		err = fmt.Errorf("gnss/Ublox.Poll: %w", err)
		return
	}

	select {
	case m = <-ch:
		return m, nil
	case <-ctx.Done():
		u.dec.RemoveHandler(h)
		err = fmt.Errorf("gnss/Ublox.Poll: class 0x%02x id 0x%02x: %w", class, id, waitErr(ctx))
		return
	}
}

// SendWithAck sends a CFG message and waits for ACK-ACK. A rejection
// returns ubx.ErrNak.
func (u *Ublox) SendWithAck(ctx context.Context, m *ubx.Message) (err error) {
	class, id := m.Class(), m.ID()
	ch := make(chan bool, 1)
	h := u.dec.AddHandler(ubx.ClassACK, ubx.Any, func(a *ubx.Message) {
		if acked, ok := ubx.IsAck(a, class, id); ok {
			select {
			case ch <- acked:
			default:
			}
		}
	}, ubx.Persistent)
	defer u.dec.RemoveHandler(h)

	if err = u.Send(m); err != nil {
		err = fmt.Errorf("gnss/Ublox.SendWithAck: %w", err)
		return
	}

	select {
	case acked := <-ch:
		if !acked {
			err = fmt.Errorf("gnss/Ublox.SendWithAck: class 0x%02x id 0x%02x: %w", class, id, ubx.ErrNak)
		}
	case <-ctx.Done():
		err = fmt.Errorf("gnss/Ublox.SendWithAck: class 0x%02x id 0x%02x: %w", class, id, waitErr(ctx))
	}
	return
}

// EnableExtIntBackup configures CFG-PM2 so that a low EXTINT0 puts the
// receiver into backup mode, or clears that behavior. EXTINT wake is always
// disabled.
func (u *Ublox) EnableExtIntBackup(ctx context.Context, enable bool) (err error) {
	m, err := u.Poll(ctx, ubx.ClassCFG, ubx.IDCfgPM2)
	if err != nil {
		return fmt.Errorf("gnss/Ublox.EnableExtIntBackup: %w", err)
	}

	flags, ok := m.GetU4(ubx.PM2FlagsOffset)
	if !ok {
		return fmt.Errorf("gnss/Ublox.EnableExtIntBackup: short CFG-PM2 payload (%d bytes)", m.PayloadLen())
	}
	flags &^= ubx.PM2ExtIntSelMask | ubx.PM2ExtIntWakeMask | ubx.PM2ExtIntBackupMask
	if enable {
		flags |= ubx.PM2ExtIntBackupMask
	}
	m.SetU4(ubx.PM2FlagsOffset, flags)

	if err = u.SendWithAck(ctx, m); err != nil {
		err = fmt.Errorf("gnss/Ublox.EnableExtIntBackup: %w", err)
	}
	return
}

// DisableTimePulse turns off the TIMEPULSE output (CFG-TP5) and hands the pin
// back to the PIO block (MON-HW).
func (u *Ublox) DisableTimePulse(ctx context.Context) (err error) {
	m, err := u.Poll(ctx, ubx.ClassCFG, ubx.IDCfgTP5)
	if err != nil {
		return fmt.Errorf("gnss/Ublox.DisableTimePulse: %w", err)
	}
	flags, ok := m.GetU4(ubx.TP5FlagsOffset)
	if !ok {
		return fmt.Errorf("gnss/Ublox.DisableTimePulse: short CFG-TP5 payload (%d bytes)", m.PayloadLen())
	}
	m.SetU4(ubx.TP5FlagsOffset, flags&^ubx.TP5Active)
	if err = u.SendWithAck(ctx, m); err != nil {
		return fmt.Errorf("gnss/Ublox.DisableTimePulse: %w", err)
	}

	err = u.UpdateMonHW(ctx, func(hw *ubx.Message) bool {
		return hw.SetU1(ubx.MonHWVPOffset+ubx.MonHWVPTimepulse, ubx.MonHWVPPIO)
	})
	if err != nil {
		err = fmt.Errorf("gnss/Ublox.DisableTimePulse: %w", err)
	}
	return
}

// PIOMasks are applied to the MON-HW pin registers as v = v&And | Or.
type PIOMasks struct {
	AndSel, OrSel uint32
	AndDir, OrDir uint32
	AndVal, OrVal uint32
}

// SetPIO updates the pin select, direction and value registers in MON-HW.
func (u *Ublox) SetPIO(ctx context.Context, masks PIOMasks) error {
	return u.UpdateMonHW(ctx, func(hw *ubx.Message) bool {
		regs := []struct {
			name    string
			offset  int
			and, or uint32
		}{
			{"pinSel", ubx.MonHWPinSelOffset, masks.AndSel, masks.OrSel},
			{"pinDir", ubx.MonHWPinDirOffset, masks.AndDir, masks.OrDir},
			{"pinVal", ubx.MonHWPinValOffset, masks.AndVal, masks.OrVal},
		}
		for _, r := range regs {
			v, ok := hw.GetU4(r.offset)
			if !ok {
				return false
			}
			v = v&r.and | r.or
			u.log.Info("setting MON-HW pin register", zap.String("register", r.name), zap.String("value", fmt.Sprintf("%08x", v)))
			hw.SetU4(r.offset, v)
		}
		return true
	})
}

// UpdateMonHW polls MON-HW, lets fn modify it and sends it back if fn returns
// true.
func (u *Ublox) UpdateMonHW(ctx context.Context, fn func(hw *ubx.Message) bool) (err error) {
	hw, err := u.Poll(ctx, ubx.ClassMON, ubx.IDMonHW)
	if err != nil {
		return fmt.Errorf("gnss/Ublox.UpdateMonHW: %w", err)
	}
	if !fn(hw) {
		u.log.Debug("MON-HW left unchanged")
		return nil
	}
	if err = u.Send(hw); err != nil {
		err = fmt.Errorf("gnss/Ublox.UpdateMonHW: %w", err)
	}
	return
}

// SetNMEARate sets how often the NMEA message msgID (e.g. "GSV") is output,
// per navigation solution, on every port. A rate of 0 disables it.
func (u *Ublox) SetNMEARate(msgID string, rate uint8) (err error) {
	r := strconv.Itoa(int(rate))
	s := nmea.Sentence{
		Type: "PUBX",
		// DDC, UART1, UART2, USB, SPI, reserved
		Data: []string{"40", msgID, r, r, r, r, r, "0"},
	}
	if err = u.send.SendCommand(s.Bytes()); err != nil {
		err = fmt.Errorf("gnss/Ublox.SetNMEARate: %w", err)
	}
	return
}
