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

import "fmt"

// NodeID is a 7-bit MBNet address
type NodeID uint8

// MaxNodeID is the highest addressable node
const MaxNodeID NodeID = 0x7f

// Validate reports ErrInvalidNodeID for ids above 127
func (id NodeID) Validate() error {
	if id > MaxNodeID {
		return fmt.Errorf("%w: %d", ErrInvalidNodeID, id)
	}
	return nil
}

// IsMaster reports whether id may act as a master. The low nibble is
// reserved for the master slot sub-channel, so it has to be zero.
func (id NodeID) IsMaster() bool {
	return id&0x0f == 0
}

// MasterSlot returns the 3-bit ms value a master puts into its requests
func (id NodeID) MasterSlot() uint8 {
	return uint8(id>>4) & 0x7
}

// MasterID returns the node id of the master occupying slot ms
func MasterID(ms uint8) NodeID {
	return NodeID(ms&0x7) << 4
}

func (id NodeID) String() string {
	return fmt.Sprintf("0x%02x", uint8(id))
}
