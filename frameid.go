// go-mbnet
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mbnet.
//
// go-mbnet is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mbnet is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mbnet; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package mbnet

import (
	"fmt"

	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// Request types of service
const (
	TOSSpecial  uint8 = 0
	TOSRAMRead  uint8 = 1
	TOSRAMWrite uint8 = 2
	TOSPing     uint8 = 3
)

// Acknowledge types of service
const (
	AckOK    uint8 = 0
	AckRead  uint8 = 1
	AckRetry uint8 = 2
	AckError uint8 = 3
)

// Extended types of service, carried in the low byte of Control when the
// request TOS is TOSSpecial
const (
	ETOSLock        uint8 = 0x00
	ETOSUnlock      uint8 = 0x01
	ETOSInit        uint8 = 0x04
	ETOSNotifyEvent uint8 = 0x06
	ETOSNotifySysEx uint8 = 0x07
	ETOSDINToggle   uint8 = 0x08
	ETOSEncChange   uint8 = 0x09
	ETOSAINChange   uint8 = 0x0a
	ETOSClone       uint8 = 0x0f

	// ETOSUserBase is the first application defined code
	ETOSUserBase uint8 = 0x10
)

// FrameID is the 29-bit MBNet header.
//
// Layout: Control(16) | TOS(2) | MS(3) | Node(7) | Ack(1), Ack being the
// least significant bit.
type FrameID struct {
	Control uint16
	TOS     uint8
	MS      uint8
	Node    NodeID
	Ack     bool
}

// Encode packs the header into a 29-bit CAN identifier
func (id FrameID) Encode() (uint32, error) {
	if id.TOS > frame.TOSMask {
		return 0, fmt.Errorf("%w: tos %d", ErrFieldRange, id.TOS)
	}
	if id.MS > frame.MSMask {
		return 0, fmt.Errorf("%w: ms %d", ErrFieldRange, id.MS)
	}
	if id.Node > frame.NodeMask {
		return 0, fmt.Errorf("%w: node %d", ErrFieldRange, id.Node)
	}

	raw := uint32(id.Control)<<frame.ControlShift |
		uint32(id.TOS)<<frame.TOSShift |
		uint32(id.MS)<<frame.MSShift |
		uint32(id.Node)<<frame.NodeShift
	if id.Ack {
		raw |= frame.AckMask << frame.AckShift
	}
	return raw, nil
}

// DecodeFrameID unpacks a 29-bit CAN identifier. Bits above bit 28 are
// rejected rather than silently dropped.
func DecodeFrameID(raw uint32) (FrameID, error) {
	if raw&^uint32(frame.MaxExtID) != 0 {
		return FrameID{}, fmt.Errorf("%w: %#x", ErrReservedBits, raw)
	}
	return FrameID{
		Control: uint16(raw >> frame.ControlShift & frame.ControlMask),
		TOS:     uint8(raw >> frame.TOSShift & frame.TOSMask),
		MS:      uint8(raw >> frame.MSShift & frame.MSMask),
		Node:    NodeID(raw >> frame.NodeShift & frame.NodeMask),
		Ack:     raw>>frame.AckShift&frame.AckMask != 0,
	}, nil
}

// ETOS returns the extended type of service of a special request
func (id FrameID) ETOS() uint8 {
	return uint8(id.Control & 0xff)
}

// Sender returns the node that sent an acknowledge; slaves put their own
// id into Control.
func (id FrameID) Sender() NodeID {
	return NodeID(id.Control & frame.NodeMask)
}

// Master returns the id of the master that issued a request
func (id FrameID) Master() NodeID {
	return MasterID(id.MS)
}

func (id FrameID) String() string {
	kind := "req"
	if id.Ack {
		kind = "ack"
	}
	return fmt.Sprintf("%s{node=%#02x ms=%d tos=%d control=%#04x}", kind, uint8(id.Node), id.MS, id.TOS, id.Control)
}
