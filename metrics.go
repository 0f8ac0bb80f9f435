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

import "sync/atomic"

// NodeMetrics is a snapshot of the node counters
type NodeMetrics struct {
	FramesSent       uint64
	MailboxBusy      uint64
	RequestsSent     uint64
	Resends          uint64
	AcksReceived     uint64
	AcksDiscarded    uint64
	Timeouts         uint64
	RequestsHandled  uint64
	LockRejections   uint64
	AcksSent         uint64
	AckErrorsSent    uint64
	CallbackErrors   uint64
	SlavesFound      uint64
	SlavesAbsent     uint64
	RequestsDropped  uint64
	DiscoveryPending uint64
}

type nodeMetrics struct {
	framesSent      atomic.Uint64
	mailboxBusy     atomic.Uint64
	requestsSent    atomic.Uint64
	resends         atomic.Uint64
	acksReceived    atomic.Uint64
	acksDiscarded   atomic.Uint64
	timeouts        atomic.Uint64
	requestsHandled atomic.Uint64
	lockRejections  atomic.Uint64
	acksSent        atomic.Uint64
	ackErrorsSent   atomic.Uint64
	callbackErrors  atomic.Uint64
	slavesFound     atomic.Uint64
	slavesAbsent    atomic.Uint64
	requestsDropped atomic.Uint64
	discPending     atomic.Uint64
}

// GetMetrics returns the current counters. Safe for concurrent use.
func (n *Node) GetMetrics() NodeMetrics {
	m := n.metrics
	return NodeMetrics{
		FramesSent:       m.framesSent.Load(),
		MailboxBusy:      m.mailboxBusy.Load(),
		RequestsSent:     m.requestsSent.Load(),
		Resends:          m.resends.Load(),
		AcksReceived:     m.acksReceived.Load(),
		AcksDiscarded:    m.acksDiscarded.Load(),
		Timeouts:         m.timeouts.Load(),
		RequestsHandled:  m.requestsHandled.Load(),
		LockRejections:   m.lockRejections.Load(),
		AcksSent:         m.acksSent.Load(),
		AckErrorsSent:    m.ackErrorsSent.Load(),
		CallbackErrors:   m.callbackErrors.Load(),
		SlavesFound:      m.slavesFound.Load(),
		SlavesAbsent:     m.slavesAbsent.Load(),
		RequestsDropped:  m.requestsDropped.Load(),
		DiscoveryPending: m.discPending.Load(),
	}
}
