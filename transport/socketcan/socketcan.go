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

// Package socketcan provides the Linux SocketCAN transport for MBNet nodes.
//
// Each receive queue is a raw CAN socket bound to the interface with its
// own kernel acceptance filter, so the kernel does the frame sorting that
// a CAN controller does in hardware.
package socketcan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// ErrUnsupportedPlatform is returned by New outside of Linux
var ErrUnsupportedPlatform = errors.New("socketcan is only available on linux")

var (
	// errWouldBlock is returned by a socket read with nothing queued
	errWouldBlock = errors.New("would block")
	// errTxBusy is returned by a socket write when the interface queue
	// is full
	errTxBusy = errors.New("transmit queue full")
)

// Config holds the socket settings
type Config struct {
	// ReceiveBuffer sets SO_RCVBUF of both sockets. Zero keeps the kernel
	// default.
	ReceiveBuffer int
}

// filterRule is a struct can_filter
type filterRule struct {
	ID   uint32
	Mask uint32
}

// kernelFilter converts an acceptance filter into a can_filter that also
// rejects standard and remote frames
func kernelFilter(f mbnet.AcceptanceFilter) filterRule {
	mask := f.Mask & frame.MaxExtID
	return filterRule{
		ID:   f.ID&mask | frame.EffFlag,
		Mask: mask | frame.EffFlag | frame.RtrFlag,
	}
}

// socket is a non-blocking raw CAN socket
type socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// SetFilter replaces the kernel filter list. An empty list accepts
	// nothing.
	SetFilter(rules []filterRule) error
	Close() error
}

// Transport implements mbnet.Transport over two raw CAN sockets. The
// request socket also carries every transmitted frame.
type Transport struct {
	sockets [2]socket
	name    string
	mu      sync.Mutex
	closed  bool
}

func newTransport(req, ack socket, name string) (*Transport, error) {
	t := &Transport{sockets: [2]socket{req, ack}, name: name}
	// accept nothing until the node installs its filters
	for q, s := range t.sockets {
		if err := s.SetFilter(nil); err != nil {
			return nil, fmt.Errorf("failed to close %v filter on %s: %w", mbnet.Queue(q), name, err)
		}
	}
	return t, nil
}

// Send writes f to the interface. A full transmit queue is reported as
// ErrMailboxBusy.
func (t *Transport) Send(ctx context.Context, f mbnet.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.IsConnected() {
		return mbnet.ErrTransportClosed
	}
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	n, err := t.sockets[mbnet.QueueRequest].Write(buf)
	switch {
	case errors.Is(err, errTxBusy):
		return mbnet.NewMailboxBusyError("send", t.name)
	case err != nil:
		return mbnet.NewTransportError("send", t.name,
			fmt.Errorf("%w: %w", mbnet.ErrTransportWrite, err), mbnet.ErrorTypeTransient)
	case n != len(buf):
		return mbnet.NewTransportError("send", t.name,
			fmt.Errorf("%w: short write of %d bytes", mbnet.ErrTransportWrite, n), mbnet.ErrorTypeTransient)
	}
	return nil
}

// TryReceive reads one frame from the socket of q without blocking
func (t *Transport) TryReceive(q mbnet.Queue) (mbnet.Frame, bool, error) {
	if err := mbnet.CheckQueue(q); err != nil {
		return mbnet.Frame{}, false, err
	}
	if !t.IsConnected() {
		return mbnet.Frame{}, false, mbnet.ErrTransportClosed
	}

	var buf [frame.BinaryFrameSize]byte
	n, err := t.sockets[q].Read(buf[:])
	if errors.Is(err, errWouldBlock) {
		return mbnet.Frame{}, false, nil
	}
	if err != nil {
		return mbnet.Frame{}, false, mbnet.NewTransportError("receive", t.name,
			fmt.Errorf("%w: %w", mbnet.ErrTransportRead, err), mbnet.ErrorTypeTransient)
	}

	var f mbnet.Frame
	if err := f.UnmarshalBinary(buf[:n]); err != nil {
		return mbnet.Frame{}, false, mbnet.NewTransportError("receive", t.name,
			fmt.Errorf("%w: %w", mbnet.ErrTransportRead, err), mbnet.ErrorTypeTransient)
	}
	return f, true, nil
}

// SetFilter installs the kernel filter of q
func (t *Transport) SetFilter(q mbnet.Queue, filter mbnet.AcceptanceFilter) error {
	if err := mbnet.CheckQueue(q); err != nil {
		return err
	}
	if !t.IsConnected() {
		return mbnet.ErrTransportClosed
	}
	if err := t.sockets[q].SetFilter([]filterRule{kernelFilter(filter)}); err != nil {
		return mbnet.NewTransportError("filter", t.name, err, mbnet.ErrorTypePermanent)
	}
	return nil
}

// Close closes both sockets
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs []error
	for _, s := range t.sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.name, err)
	}
	return nil
}

// IsConnected returns true until Close is called
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mbnet.TransportType {
	return mbnet.TransportSocketCAN
}

// String returns the interface name
func (t *Transport) String() string {
	return "socketcan:" + t.name
}
