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

	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// Queue selects one of the two hardware receive queues
type Queue uint8

const (
	// QueueRequest receives frames addressed to this node with ack=0
	QueueRequest Queue = iota
	// QueueAck receives frames addressed to this node with ack=1
	QueueAck
)

func (q Queue) String() string {
	switch q {
	case QueueRequest:
		return "request"
	case QueueAck:
		return "ack"
	default:
		return fmt.Sprintf("queue(%d)", uint8(q))
	}
}

// AcceptanceFilter matches extended frames whose identifier satisfies
// (frame.ID & Mask) == (ID & Mask)
type AcceptanceFilter struct {
	ID   uint32
	Mask uint32
}

// Match reports whether f passes the filter. Standard and remote frames
// never pass; MBNet uses extended data frames only.
func (a AcceptanceFilter) Match(f Frame) bool {
	if !f.Extended || f.RTR {
		return false
	}
	return f.ID&a.Mask == a.ID&a.Mask
}

// RequestFilter routes requests addressed to id into QueueRequest
func RequestFilter(id NodeID) AcceptanceFilter {
	return AcceptanceFilter{
		ID:   uint32(id&MaxNodeID) << frame.NodeShift,
		Mask: frame.AddressMask,
	}
}

// AckFilter routes acknowledges addressed to id into QueueAck
func AckFilter(id NodeID) AcceptanceFilter {
	return AcceptanceFilter{
		ID:   uint32(id&MaxNodeID)<<frame.NodeShift | frame.AckMask<<frame.AckShift,
		Mask: frame.AddressMask,
	}
}

// Transport is the CAN peripheral as seen by the protocol engine. It can
// be implemented by a SocketCAN socket, an SLCAN serial adapter, an
// MCP2515 on SPI or an in-memory loopback bus.
//
// Implementations own two bounded receive queues. A frame is delivered to
// the queue whose filter it matches and dropped otherwise.
type Transport interface {
	// Send hands the frame to any free transmit slot. It returns
	// ErrMailboxBusy (possibly wrapped) when every slot is occupied.
	Send(ctx context.Context, f Frame) error

	// TryReceive pops the oldest frame of q without blocking. ok is false
	// when the queue is empty.
	TryReceive(q Queue) (f Frame, ok bool, err error)

	// SetFilter installs the acceptance filter for q
	SetFilter(q Queue, filter AcceptanceFilter) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportLoopback represents the in-memory bus
	TransportLoopback TransportType = "loopback"
	// TransportSLCAN represents a serial line CAN adapter
	TransportSLCAN TransportType = "slcan"
	// TransportSocketCAN represents a Linux SocketCAN interface
	TransportSocketCAN TransportType = "socketcan"
	// TransportMCP2515 represents an MCP2515 controller on SPI
	TransportMCP2515 TransportType = "mcp2515"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// CheckQueue validates q for transports with the two standard queues
func CheckQueue(q Queue) error {
	if q != QueueRequest && q != QueueAck {
		return fmt.Errorf("%w: %v", ErrUnsupportedQueue, q)
	}
	return nil
}
