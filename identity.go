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

// SetNodeID configures the node id and installs the two acceptance
// filters: requests addressed to id go to QueueRequest, acknowledges
// addressed to id go to QueueAck, everything else is dropped by the
// transport. Setting a new id drops the pending request, the lock and
// the discovery tables.
func (n *Node) SetNodeID(id NodeID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	if err := n.transport.SetFilter(QueueRequest, RequestFilter(id)); err != nil {
		return fmt.Errorf("failed to install request filter: %w", err)
	}
	if err := n.transport.SetFilter(QueueAck, AckFilter(id)); err != nil {
		return fmt.Errorf("failed to install acknowledge filter: %w", err)
	}

	n.id = id
	n.idSet = true
	n.pending = nil
	n.lock = lockState{}
	if n.disc != nil {
		n.disc = newDiscovery(n.config.Discovery)
	}

	if n.log != nil {
		n.log.Debug().
			Str("node", id.String()).
			Str("role", roleOf(id)).
			Msg("node id configured")
	}
	return nil
}

// NodeID returns the configured id. ok is false if no id was set yet.
func (n *Node) NodeID() (id NodeID, ok bool) {
	return n.id, n.idSet
}

// masterID returns the own id if the node may send requests
func (n *Node) masterID() (NodeID, error) {
	if !n.idSet {
		return 0, ErrNotConfigured
	}
	if !n.id.IsMaster() {
		return 0, fmt.Errorf("%w: %v", ErrNotMaster, n.id)
	}
	return n.id, nil
}

func roleOf(id NodeID) string {
	if id.IsMaster() {
		return "master"
	}
	return "slave"
}
