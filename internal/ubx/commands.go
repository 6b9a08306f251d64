// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

// Message classes.
const (
	ClassNAV uint8 = 0x01
	ClassACK uint8 = 0x05
	ClassCFG uint8 = 0x06
	ClassMON uint8 = 0x0A
	ClassMGA uint8 = 0x13
)

// Message ids.
const (
	IDAckNak uint8 = 0x00
	IDAckAck uint8 = 0x01

	IDCfgRst   uint8 = 0x04
	IDCfgAnt   uint8 = 0x13
	IDCfgNavX5 uint8 = 0x23
	IDCfgTP5   uint8 = 0x31
	IDCfgPM2   uint8 = 0x3B

	IDMonHW uint8 = 0x09

	IDMgaAck uint8 = 0x60

	IDNavPVT uint8 = 0x07
)

// StartType selects which battery-backed data CFG-RST clears.
type StartType uint16

const (
	HotStart  StartType = 0x0000
	WarmStart StartType = 0x0001
	ColdStart StartType = 0xFFFF
)

// ResetMode selects how CFG-RST resets the receiver.
type ResetMode uint8

const (
	ResetHardwareWatchdog      ResetMode = 0x00
	ResetSoftware              ResetMode = 0x01
	ResetSoftwareGNSSOnly      ResetMode = 0x02
	ResetHardwareAfterShutdown ResetMode = 0x04
	ResetGNSSStop              ResetMode = 0x08
	ResetGNSSStart             ResetMode = 0x09
)

const (
	// CFG-ANT pin configuration: pinSwitch=0x10, pinSCD=0x0f, pinOCD=0x1f,
	// reconfig cleared.
	antPins = 0x7DF0

	navX5PayloadLen = 40
	navX5Version    = 0x0002
	navX5MaskAckAid = 0x0400
	navX5AckAidOff  = 37

	// CFG-PM2 flags
	PM2FlagsOffset      = 4
	PM2ExtIntSelMask    = 0x00000010
	PM2ExtIntWakeMask   = 0x00000020
	PM2ExtIntBackupMask = 0x00000040

	// CFG-TP5 flags
	TP5FlagsOffset = 28
	TP5Active      = 0x00000001

	// MON-HW
	MonHWPinSelOffset = 0
	MonHWPinDirOffset = 8
	MonHWPinValOffset = 12
	MonHWVPOffset     = 28
	MonHWVPTimepulse  = 0x0B
	MonHWVPPIO        = 0xFF
)

// Poll builds an empty-payload request for class and id. The receiver
// answers with the current value of that message.
func Poll(class, id uint8) *Message {
	m := NewCommand(class, id, 0)
	m.UpdateChecksum()
	return m
}

// Antenna builds CFG-ANT selecting the internal or external antenna
// supply.
func Antenna(external bool) *Message {
	m := NewCommand(ClassCFG, IDCfgAnt, 4)
	var svcs uint16
	if external {
		svcs = 0x0001
	}
	m.AppendU2(svcs)
	m.AppendU2(antPins)
	m.UpdateChecksum()
	return m
}

// Reset builds CFG-RST.
func Reset(start StartType, mode ResetMode) *Message {
	m := NewCommand(ClassCFG, IDCfgRst, 4)
	m.AppendU2(uint16(start))
	m.AppendU1(uint8(mode))
	m.AppendU1(0)
	m.UpdateChecksum()
	return m
}

// AckAiding builds CFG-NAVX5 enabling acknowledgement of assistance data.
func AckAiding() *Message {
	m := NewCommand(ClassCFG, IDCfgNavX5, navX5PayloadLen)
	m.FillData(0, navX5PayloadLen)
	m.SetU2(0, navX5Version)
	m.SetU2(2, navX5MaskAckAid)
	m.SetU1(navX5AckAidOff, 1)
	m.UpdateChecksum()
	return m
}

// AidingAck is the MGA-ACK-DATA0 reply to one assistance message.
type AidingAck struct {
	Accepted bool
	// InfoCode is 0 when accepted, otherwise the receiver's reason for
	// dropping the message.
	InfoCode uint8
	// MsgID is the MGA message id being acknowledged.
	MsgID uint8
}

// ParseAidingAck decodes an MGA-ACK-DATA0 message. ok is false if m is not
// one.
func ParseAidingAck(m *Message) (a AidingAck, ok bool) {
	if m.Class() != ClassMGA || m.ID() != IDMgaAck || m.PayloadLen() < 8 {
		return a, false
	}
	typ, _ := m.GetU1(0)
	a.InfoCode, _ = m.GetU1(2)
	a.MsgID, _ = m.GetU1(3)
	a.Accepted = typ == 1
	return a, true
}

// IsAck reports whether m acknowledges class and id. ok is false if m is not
// an ACK-ACK or ACK-NAK for that message.
func IsAck(m *Message, class, id uint8) (acked, ok bool) {
	if m.Class() != ClassACK {
		return false, false
	}
	c, _ := m.GetU1(0)
	i, _ := m.GetU1(1)
	if m.PayloadLen() < 2 || c != class || i != id {
		return false, false
	}
	return m.ID() == IDAckAck, true
}
