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

// Package loopback provides an in-memory CAN bus. Every endpoint opened on
// a bus sees the frames the others send, filtered into its two receive
// queues like a real controller would do.
package loopback

import (
	"context"
	"sync"

	"github.com/ZaparooProject/go-mbnet"
	itransport "github.com/ZaparooProject/go-mbnet/internal/transport"
)

// DefaultQueueDepth mirrors the three entry receive FIFOs of common CAN
// controllers
const DefaultQueueDepth = 3

// Bus is an in-memory CAN bus for tests and simulations
type Bus struct {
	endpoints map[*Endpoint]struct{}
	depth     int
	mu        sync.RWMutex
	closed    bool
}

// NewBus creates a bus whose endpoints queue DefaultQueueDepth frames
func NewBus() *Bus {
	return NewBusWithDepth(DefaultQueueDepth)
}

// NewBusWithDepth creates a bus with a custom receive queue depth
func NewBusWithDepth(depth int) *Bus {
	return &Bus{endpoints: make(map[*Endpoint]struct{}), depth: depth}
}

// Open attaches a new endpoint to the bus
func (b *Bus) Open(name string) *Endpoint {
	ep := &Endpoint{
		bus:  b,
		name: name,
		queues: [2]*itransport.FIFO[mbnet.Frame]{
			itransport.NewFIFO[mbnet.Frame](b.depth),
			itransport.NewFIFO[mbnet.Frame](b.depth),
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.closed = true
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close closes the bus and detaches all endpoints
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.markClosed()
	}
	b.endpoints = nil
	return nil
}

// Endpoint is one node's view of the bus. It implements mbnet.Transport.
type Endpoint struct {
	bus     *Bus
	queues  [2]*itransport.FIFO[mbnet.Frame]
	filters [2]*mbnet.AcceptanceFilter
	name    string
	busy    int
	mu      sync.Mutex
	closed  bool
}

// Send broadcasts f to every other endpoint on the bus
func (e *Endpoint) Send(_ context.Context, f mbnet.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return mbnet.ErrTransportClosed
	}
	if e.busy > 0 {
		e.busy--
		e.mu.Unlock()
		return mbnet.NewMailboxBusyError("send", e.name)
	}
	e.mu.Unlock()

	// snapshot the endpoints so no bus lock is held while delivering
	e.bus.mu.RLock()
	if e.bus.closed {
		e.bus.mu.RUnlock()
		return mbnet.ErrTransportClosed
	}
	targets := make([]*Endpoint, 0, len(e.bus.endpoints))
	for ep := range e.bus.endpoints {
		if ep != e {
			targets = append(targets, ep)
		}
	}
	e.bus.mu.RUnlock()

	for _, t := range targets {
		t.deliver(f)
	}
	return nil
}

// deliver routes f into the first queue whose filter accepts it
func (e *Endpoint) deliver(f mbnet.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	for q, filter := range e.filters {
		if filter != nil && filter.Match(f) {
			e.queues[q].Push(f)
			return
		}
	}
}

// TryReceive pops the oldest frame of q
func (e *Endpoint) TryReceive(q mbnet.Queue) (mbnet.Frame, bool, error) {
	if err := mbnet.CheckQueue(q); err != nil {
		return mbnet.Frame{}, false, err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return mbnet.Frame{}, false, mbnet.ErrTransportClosed
	}

	f, ok := e.queues[q].Pop()
	return f, ok, nil
}

// SetFilter installs the acceptance filter of q
func (e *Endpoint) SetFilter(q mbnet.Queue, filter mbnet.AcceptanceFilter) error {
	if err := mbnet.CheckQueue(q); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[q] = &filter
	return nil
}

// SetBusy makes the next n sends fail with ErrMailboxBusy
func (e *Endpoint) SetBusy(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = n
}

// Overruns returns how many frames q dropped because it was full
func (e *Endpoint) Overruns(q mbnet.Queue) uint64 {
	if mbnet.CheckQueue(q) != nil {
		return 0
	}
	return e.queues[q].Overruns()
}

// Close detaches the endpoint from the bus
func (e *Endpoint) Close() error {
	e.bus.mu.Lock()
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	e.bus.mu.Unlock()

	e.markClosed()
	return nil
}

func (e *Endpoint) markClosed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// IsConnected returns true until the endpoint or the bus is closed
func (e *Endpoint) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Type returns mbnet.TransportLoopback
func (*Endpoint) Type() mbnet.TransportType {
	return mbnet.TransportLoopback
}

// String returns the endpoint name
func (e *Endpoint) String() string {
	return e.name
}
