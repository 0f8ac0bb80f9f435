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

package testing

import (
	"errors"
	"fmt"
)

// Request and acknowledge codes as they appear on the wire
const (
	TOSSpecial  = 0
	TOSRAMRead  = 1
	TOSRAMWrite = 2
	TOSPing     = 3

	AckOK    = 0
	AckRead  = 1
	AckRetry = 2
	AckError = 3
)

var errNotPresent = errors.New("slave not present")

// VirtualSlave is a simulated MBNet slave working on raw identifiers. It
// answers pings with its pong, serves RAM reads and writes from Memory and
// can be told to ask for a number of retries first.
type VirtualSlave struct {
	Memory  []byte
	Pong    []byte
	ID      uint8
	Retries int // AckRetry answers still to give
	Present bool
	Seen    int // requests addressed to this slave
}

// NewVirtualSlave creates a present slave with 256 bytes of RAM
func NewVirtualSlave(id uint8, nodeType string) *VirtualSlave {
	return &VirtualSlave{
		ID:      id,
		Memory:  make([]byte, 256),
		Pong:    BuildPongPayload(1, nodeType, 1, 0),
		Present: true,
	}
}

// Respond answers one raw request frame. ok is false when the frame is
// not a request for this slave or the slave is absent.
func (v *VirtualSlave) Respond(rawID uint32, data []byte) (ackID uint32, ackData []byte, ok bool) {
	control, tos, ms, node, ack := ParseID(rawID)
	if ack || node != v.ID || !v.Present {
		return 0, nil, false
	}
	v.Seen++
	master := ms << 4

	if v.Retries > 0 {
		v.Retries--
		return BuildAckID(v.ID, AckRetry, master), nil, true
	}

	switch tos {
	case TOSPing:
		return BuildAckID(v.ID, AckOK, master), append([]byte(nil), v.Pong...), true
	case TOSRAMRead:
		if len(data) < 1 {
			return BuildAckID(v.ID, AckError, master), nil, true
		}
		out, err := v.ReadRAM(int(control), int(data[0]))
		if err != nil {
			return BuildAckID(v.ID, AckError, master), nil, true
		}
		return BuildAckID(v.ID, AckRead, master), out, true
	case TOSRAMWrite:
		if err := v.WriteRAM(int(control), data); err != nil {
			return BuildAckID(v.ID, AckError, master), nil, true
		}
		return BuildAckID(v.ID, AckOK, master), nil, true
	default:
		return BuildAckID(v.ID, AckOK, master), nil, true
	}
}

// ReadRAM returns a copy of length bytes at addr
func (v *VirtualSlave) ReadRAM(addr, length int) ([]byte, error) {
	if !v.Present {
		return nil, errNotPresent
	}
	if addr < 0 || length < 0 || addr+length > len(v.Memory) {
		return nil, fmt.Errorf("address %d+%d out of range", addr, length)
	}
	out := make([]byte, length)
	copy(out, v.Memory[addr:addr+length])
	return out, nil
}

// WriteRAM stores data at addr
func (v *VirtualSlave) WriteRAM(addr int, data []byte) error {
	if !v.Present {
		return errNotPresent
	}
	if addr < 0 || addr+len(data) > len(v.Memory) {
		return fmt.Errorf("address %d+%d out of range", addr, len(data))
	}
	copy(v.Memory[addr:], data)
	return nil
}

// Remove takes the slave off the bus
func (v *VirtualSlave) Remove() {
	v.Present = false
}

// Insert puts the slave back on the bus
func (v *VirtualSlave) Insert() {
	v.Present = true
}
