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
	"encoding/binary"

	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// Message is the 8-byte MBNet payload. It can be looked at as raw bytes,
// as two little-endian 32-bit words or as a Pong.
type Message [8]byte

// Word returns 32-bit word i (0 or 1)
func (m Message) Word(i int) uint32 {
	return binary.LittleEndian.Uint32(m[i*4 : i*4+4])
}

// SetWord stores 32-bit word i (0 or 1)
func (m *Message) SetWord(i int, v uint32) {
	binary.LittleEndian.PutUint32(m[i*4:i*4+4], v)
}

// MessageFromWords builds a message from its two words
func MessageFromWords(w0, w1 uint32) Message {
	var m Message
	m.SetWord(0, w0)
	m.SetWord(1, w1)
	return m
}

// Pong interprets the message as a ping answer
func (m Message) Pong() Pong {
	var p Pong
	p.ProtocolVersion = m[frame.PongProtocolVersion]
	copy(p.NodeType[:], m[frame.PongNodeType:frame.PongNodeType+frame.PongNodeTypeLen])
	p.NodeVersion = m[frame.PongNodeVersion]
	p.NodeSubversion = m[frame.PongNodeSubversion]
	return p
}

// Pong is the identification record a slave returns for a PING
type Pong struct {
	NodeType        [4]byte
	ProtocolVersion uint8
	NodeVersion     uint8
	NodeSubversion  uint8
}

// PongLength is the number of payload bytes a pong occupies on the wire
const PongLength = 8

// NewPong builds a pong. nodeType is truncated or space padded to four
// characters.
func NewPong(protocolVersion uint8, nodeType string, version, subversion uint8) Pong {
	p := Pong{ProtocolVersion: protocolVersion, NodeVersion: version, NodeSubversion: subversion}
	copy(p.NodeType[:], "    ")
	copy(p.NodeType[:], nodeType)
	return p
}

// Message encodes the pong into a payload
func (p Pong) Message() Message {
	var m Message
	m[frame.PongProtocolVersion] = p.ProtocolVersion
	copy(m[frame.PongNodeType:], p.NodeType[:])
	m[frame.PongNodeVersion] = p.NodeVersion
	m[frame.PongNodeSubversion] = p.NodeSubversion
	return m
}

// Type returns the node type as a string
func (p Pong) Type() string {
	return string(p.NodeType[:])
}
