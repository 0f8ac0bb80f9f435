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

package mcp2515

import (
	"fmt"

	"github.com/ZaparooProject/go-mbnet"
)

// SPI instructions
const (
	instReset       = 0xC0
	instRead        = 0x03
	instWrite       = 0x02
	instBitModify   = 0x05
	instReadStatus  = 0xA0
	instLoadTX      = 0x40 // | 2*slot, starts at TXBnSIDH
	instRTS         = 0x80 // | 1<<slot
	instReadRXB0    = 0x90 // starts at RXB0SIDH, clears RX0IF
	instReadRXB1    = 0x94 // starts at RXB1SIDH, clears RX1IF
	regCANSTAT      = 0x0E
	regCANCTRL      = 0x0F
	regCNF3         = 0x28
	regCNF2         = 0x29
	regCNF1         = 0x2A
	regCANINTE      = 0x2B
	regCANINTF      = 0x2C
	regTXB0CTRL     = 0x30
	regRXB0CTRL     = 0x60
	regRXB1CTRL     = 0x70
	regRXM0         = 0x20
	regRXM1         = 0x24
	modeMask        = 0xE0
	modeNormal      = 0x00
	modeConfig      = 0x80
	txreq           = 0x08
	rxBufferLen     = 13 // SIDH SIDL EID8 EID0 DLC D0..D7
	idLen           = 4
	sidlExtended    = 0x08
	sidlRemoteStd   = 0x10
	dlcRemote       = 0x40
	statusRX0IF     = 0x01
	statusRX1IF     = 0x02
	rxbCtrlNoRollov = 0x00
)

// filter register banks. RXB0 owns RXF0-1 and RXB1 owns RXF2-5.
var (
	requestFilters = []byte{0x00, 0x04}
	ackFilters     = []byte{0x08, 0x10, 0x14, 0x18}
)

// txreqStatus are the TXREQ flags of TXB0..2 in the READ STATUS byte
var txreqStatus = [3]byte{0x04, 0x10, 0x40}

// encodeID packs an identifier into the SIDH SIDL EID8 EID0 layout
func encodeID(id uint32, extended bool) [idLen]byte {
	if !extended {
		return [idLen]byte{byte(id >> 3), byte(id&0x07) << 5, 0, 0}
	}
	return [idLen]byte{
		byte(id >> 21),
		byte((id>>18)&0x07)<<5 | sidlExtended | byte((id>>16)&0x03),
		byte(id >> 8),
		byte(id),
	}
}

// decodeID unpacks SIDH SIDL EID8 EID0
func decodeID(b []byte) (id uint32, extended bool) {
	sid := uint32(b[0])<<3 | uint32(b[1])>>5
	if b[1]&sidlExtended == 0 {
		return sid, false
	}
	return sid<<18 | uint32(b[1]&0x03)<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// encodeTX renders the TXBnSIDH..D7 image of f
func encodeTX(f mbnet.Frame) []byte {
	id := encodeID(f.ID, f.Extended)
	buf := make([]byte, 0, rxBufferLen)
	buf = append(buf, id[:]...)
	dlc := f.Len
	if f.RTR {
		dlc |= dlcRemote
	}
	buf = append(buf, dlc)
	return append(buf, f.Data[:]...)
}

// decodeRX parses an RXBnSIDH..D7 image
func decodeRX(b []byte) (mbnet.Frame, error) {
	if len(b) < rxBufferLen {
		return mbnet.Frame{}, fmt.Errorf("short receive buffer: %d bytes", len(b))
	}
	var f mbnet.Frame
	f.ID, f.Extended = decodeID(b[:idLen])
	if f.Extended {
		f.RTR = b[4]&dlcRemote != 0
	} else {
		f.RTR = b[1]&sidlRemoteStd != 0
	}
	f.Len = min(b[4]&0x0F, 8)
	copy(f.Data[:], b[5:rxBufferLen])
	return f, f.Validate()
}

// timing holds CNF1 CNF2 CNF3
type timing [3]byte

// bitTimings lists the register values for common oscillator and bitrate
// pairs, 16 time quanta per bit where the clock allows it
var bitTimings = map[int]map[int]timing{
	16000000: {
		125000:  {0x03, 0xF0, 0x86},
		250000:  {0x41, 0xF1, 0x85},
		500000:  {0x00, 0xF0, 0x86},
		1000000: {0x00, 0xD0, 0x82},
	},
	8000000: {
		125000: {0x01, 0xB1, 0x85},
		250000: {0x00, 0xB1, 0x85},
		500000: {0x00, 0x90, 0x82},
	},
}

func lookupTiming(oscillator, bitrate int) (timing, error) {
	rates, ok := bitTimings[oscillator]
	if !ok {
		return timing{}, fmt.Errorf("unsupported oscillator %d Hz", oscillator)
	}
	t, ok := rates[bitrate]
	if !ok {
		return timing{}, fmt.Errorf("unsupported bitrate %d with %d Hz oscillator", bitrate, oscillator)
	}
	return t, nil
}
