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
	"sync"
)

// PongResponder answers PING requests with pong and refuses everything
// else with AckError
func PongResponder(pong Pong) RequestHandler {
	return func(ctx context.Context, n *Node, req Request) error {
		if req.TOS != TOSPing {
			return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
		}
		return n.SendAck(ctx, req.Master, AckOK, pong.Message(), PongLength)
	}
}

// MemoryResponder serves PING, RAM_READ and RAM_WRITE requests from an
// in-memory RAM image. Reads carry the length in the first payload byte
// and the address in Control; writes carry the data.
type MemoryResponder struct {
	memory []byte
	pong   Pong
	mu     sync.RWMutex
}

// NewMemoryResponder creates a responder with size bytes of zeroed RAM
func NewMemoryResponder(pong Pong, size int) *MemoryResponder {
	return &MemoryResponder{pong: pong, memory: make([]byte, size)}
}

// Handle is a RequestHandler
func (m *MemoryResponder) Handle(ctx context.Context, n *Node, req Request) error {
	switch req.TOS {
	case TOSPing:
		return n.SendAck(ctx, req.Master, AckOK, m.pong.Message(), PongLength)

	case TOSRAMRead:
		if req.Len < 1 {
			return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
		}
		length := req.Msg[0]
		data, err := m.Read(req.Control, int(length))
		if err != nil {
			return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
		}
		var msg Message
		copy(msg[:], data)
		return n.SendAck(ctx, req.Master, AckRead, msg, length)

	case TOSRAMWrite:
		if err := m.Write(req.Control, req.Data()); err != nil {
			return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
		}
		return n.SendAck(ctx, req.Master, AckOK, Message{}, 0)

	default:
		return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
	}
}

// Read returns a copy of length bytes at addr
func (m *MemoryResponder) Read(addr uint16, length int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if length < 1 || length > len(Message{}) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	end := int(addr) + length
	if end > len(m.memory) {
		return nil, fmt.Errorf("%w: address %#04x+%d beyond %d bytes", ErrOutOfRange, addr, length, len(m.memory))
	}
	return append([]byte(nil), m.memory[addr:end]...), nil
}

// Write stores data at addr
func (m *MemoryResponder) Write(addr uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(data) < 1 || len(data) > len(Message{}) {
		return fmt.Errorf("%w: %d", ErrInvalidLength, len(data))
	}
	end := int(addr) + len(data)
	if end > len(m.memory) {
		return fmt.Errorf("%w: address %#04x+%d beyond %d bytes", ErrOutOfRange, addr, len(data), len(m.memory))
	}
	copy(m.memory[addr:end], data)
	return nil
}
