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

// Package frame provides wire layout constants for MBNet frames and the
// CAN framing they travel in
package frame

// Identifier field layout, least significant field first.
// Layout: Control(16) | TOS(2) | MS(3) | Node(7) | Ack(1)
const (
	AckShift     = 0
	NodeShift    = 1
	MSShift      = 8
	TOSShift     = 11
	ControlShift = 13

	AckMask     = 0x1
	NodeMask    = 0x7F
	MSMask      = 0x7
	TOSMask     = 0x3
	ControlMask = 0xFFFF
)

// Identifier limits
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF

	// AddressMask selects the node and ack bits, which is all the
	// acceptance filters look at.
	AddressMask = NodeMask<<NodeShift | AckMask<<AckShift
)

// Classical CAN payload limits
const (
	MaxDataLength = 8
	WordCount     = 2
)

// Linux can_frame flags, also used by the binary frame encoding
const (
	EffFlag = 0x80000000
	RtrFlag = 0x40000000
	ErrFlag = 0x20000000

	// BinaryFrameSize is sizeof(struct can_frame)
	BinaryFrameSize = 16
)

// Pong payload offsets
const (
	PongProtocolVersion = 0
	PongNodeType        = 1
	PongNodeTypeLen     = 4
	PongNodeVersion     = 5
	PongNodeSubversion  = 6
)
