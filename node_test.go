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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transport Transport
		name      string
		opts      []Option
		wantErr   bool
	}{
		{name: "nil transport", transport: nil, wantErr: true},
		{name: "unconfigured", transport: NewMockTransport()},
		{name: "with id", transport: NewMockTransport(), opts: []Option{WithNodeID(0x21)}},
		{name: "invalid id", transport: NewMockTransport(), opts: []Option{WithNodeID(0x80)}, wantErr: true},
		{name: "zero poll budget", transport: NewMockTransport(), opts: []Option{WithAckPollBudget(0)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := New(tt.transport, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, node)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.transport, node.Transport())
		})
	}
}

func TestNew_InstallsFiltersForID(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x21)
	id, ok := node.NodeID()
	require.True(t, ok)
	assert.Equal(t, NodeID(0x21), id)

	f, ok := mock.Filter(QueueRequest)
	require.True(t, ok)
	assert.Equal(t, RequestFilter(0x21), f)
	f, ok = mock.Filter(QueueAck)
	require.True(t, ok)
	assert.Equal(t, AckFilter(0x21), f)
}

func TestNode_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	master, _ := newTestNode(t, 0x10)
	require.NoError(t, master.SendReq(ctx, 0x05, TOSPing, 0, Message{}, 0))
	master.Reset()
	require.ErrorIs(t, master.SendReqAgain(ctx, 0x05), ErrSequence)
	id, ok := master.NodeID()
	require.True(t, ok, "id survives a reset")
	assert.Equal(t, NodeID(0x10), id)

	slave, mock := newTestNode(t, 0x05, WithLockIdlePolls(1))
	mock.Deliver(requestFrame(t, 0x05, 2, TOSSpecial, uint16(ETOSLock)))
	require.NoError(t, slave.Handler(ctx, nil))
	_, locked := slave.Locked()
	require.True(t, locked)

	slave.Reset()
	_, locked = slave.Locked()
	assert.False(t, locked)
	_, ok = mock.Filter(QueueRequest)
	assert.True(t, ok, "filters survive a reset")
}

func TestNode_Close(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05)
	require.NoError(t, node.Close())
	assert.False(t, mock.IsConnected())
}

func TestConnect(t *testing.T) {
	t.Parallel()

	errOpen := errors.New("no such device")

	tests := []struct {
		factory     TransportFactory
		name        string
		path        string
		opts        []Option
		wantErr     error
		wantConnect bool
	}{
		{
			name:        "factory",
			path:        "can0",
			factory:     func(string) (Transport, error) { return NewMockTransport(), nil },
			opts:        []Option{WithNodeID(0x10)},
			wantConnect: true,
		},
		{
			name:    "factory error",
			path:    "can0",
			factory: func(string) (Transport, error) { return nil, errOpen },
			wantErr: errOpen,
		},
		{
			name: "no factory",
			path: "can0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var connectOpts []ConnectOption
			if tt.factory != nil {
				connectOpts = append(connectOpts, WithTransportFactory(tt.factory))
			}
			connectOpts = append(connectOpts, WithNodeOptions(tt.opts...))

			node, err := Connect(tt.path, connectOpts...)
			if !tt.wantConnect {
				require.Error(t, err)
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			id, ok := node.NodeID()
			require.True(t, ok)
			assert.Equal(t, NodeID(0x10), id)
			assert.True(t, node.Transport().IsConnected())
		})
	}
}

func TestConnect_ClosesTransportOnNodeError(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	_, err := Connect("can0",
		WithTransportFactory(func(string) (Transport, error) { return mock, nil }),
		WithNodeOptions(WithNodeID(0x80)))
	require.ErrorIs(t, err, ErrInvalidNodeID)
	assert.False(t, mock.IsConnected())
}

func TestConnect_AutoDetectNeedsDeviceFactory(t *testing.T) {
	t.Parallel()

	_, err := Connect("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device factory")
}
