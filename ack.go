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
	"context"
	"fmt"
)

// SendAck answers a request of master. The frame carries the own id in
// Control so the master can tell concurrent slaves apart.
func (n *Node) SendAck(ctx context.Context, master NodeID, tos uint8, msg Message, dlc uint8) error {
	if !n.idSet {
		return ErrNotConfigured
	}
	if master > MaxNodeID || !master.IsMaster() {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, master)
	}

	id := FrameID{
		Control: uint16(n.id),
		TOS:     tos,
		MS:      0,
		Node:    master,
		Ack:     true,
	}
	if err := n.send(ctx, id, msg, dlc); err != nil {
		return fmt.Errorf("failed to send acknowledge to %v: %w", master, err)
	}

	n.metrics.acksSent.Add(1)
	if tos == AckError {
		n.metrics.ackErrorsSent.Add(1)
	}
	return nil
}
