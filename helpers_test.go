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
	"testing"

	testutil "github.com/ZaparooProject/go-mbnet/internal/testing"
	"github.com/stretchr/testify/require"
)

// newTestNode creates a configured node on a fresh mock transport
func newTestNode(t *testing.T, id NodeID, opts ...Option) (*Node, *MockTransport) {
	t.Helper()

	mock := NewMockTransport()
	node, err := New(mock, append([]Option{WithNodeID(id)}, opts...)...)
	require.NoError(t, err)
	return node, mock
}

// slaveResponder lets virtual slaves answer every transmitted frame
func slaveResponder(slaves ...*testutil.VirtualSlave) func(Frame) []Frame {
	return func(f Frame) []Frame {
		for _, s := range slaves {
			id, data, ok := s.Respond(f.ID, f.Data[:f.Len])
			if !ok {
				continue
			}
			reply := Frame{ID: id, Extended: true, Len: uint8(len(data))}
			copy(reply.Data[:], data)
			return []Frame{reply}
		}
		return nil
	}
}

// requestFrame builds a request as a master in slot ms would send it
func requestFrame(t *testing.T, to NodeID, ms, tos uint8, control uint16, data ...byte) Frame {
	t.Helper()

	var msg Message
	copy(msg[:], data)
	f, err := NewFrame(FrameID{Control: control, TOS: tos, MS: ms, Node: to}, msg, uint8(len(data)))
	require.NoError(t, err)
	return f
}

// decodeSent decodes every frame the node transmitted
func decodeSent(t *testing.T, mock *MockTransport) []FrameID {
	t.Helper()

	sent := mock.Sent()
	ids := make([]FrameID, 0, len(sent))
	for _, f := range sent {
		id, err := f.FrameID()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}
