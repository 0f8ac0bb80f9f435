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

// Package testing builds raw MBNet identifiers and payloads for tests.
// It deliberately does its own bit arithmetic so codec tests do not
// check the codec against itself.
package testing

// BuildRequestID packs a request identifier (ack bit clear)
func BuildRequestID(control uint16, tos, ms, node uint8) uint32 {
	return uint32(control)<<13 | uint32(tos&0x3)<<11 | uint32(ms&0x7)<<8 | uint32(node&0x7f)<<1
}

// BuildAckID packs an acknowledge identifier. Slaves put their own id into
// control and leave ms zero.
func BuildAckID(from uint8, tos, master uint8) uint32 {
	return uint32(from)<<13 | uint32(tos&0x3)<<11 | uint32(master&0x7f)<<1 | 1
}

// BuildPongPayload creates the 8 byte answer to a ping
func BuildPongPayload(protocolVersion uint8, nodeType string, version, subversion uint8) []byte {
	payload := []byte{protocolVersion, ' ', ' ', ' ', ' ', version, subversion, 0x00}
	copy(payload[1:5], nodeType)
	return payload
}

// BuildWordPayload lays out two 32-bit words little-endian
func BuildWordPayload(w0, w1 uint32) []byte {
	return []byte{
		byte(w0), byte(w0 >> 8), byte(w0 >> 16), byte(w0 >> 24),
		byte(w1), byte(w1 >> 8), byte(w1 >> 16), byte(w1 >> 24),
	}
}

// ParseID splits a raw identifier into its fields
func ParseID(raw uint32) (control uint16, tos, ms, node uint8, ack bool) {
	return uint16(raw >> 13), uint8(raw>>11) & 0x3, uint8(raw>>8) & 0x7, uint8(raw>>1) & 0x7f, raw&1 == 1
}
