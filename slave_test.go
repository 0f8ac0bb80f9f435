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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	calls []string
}

func (h *recordingHooks) Init() {
	h.calls = append(h.calls, "init")
}

func (h *recordingHooks) NotifyReceivedEvent(event [3]byte) {
	h.calls = append(h.calls, fmt.Sprintf("event %02x %02x %02x", event[0], event[1], event[2]))
}

func (h *recordingHooks) NotifyReceivedSysEx(b byte) {
	h.calls = append(h.calls, fmt.Sprintf("sysex %02x", b))
}

func (h *recordingHooks) DINToggle(pin, value uint8) {
	h.calls = append(h.calls, fmt.Sprintf("din %d=%d", pin, value))
}

func (h *recordingHooks) EncoderChange(encoder uint8, increment int8) {
	h.calls = append(h.calls, fmt.Sprintf("enc %d%+d", encoder, increment))
}

func (h *recordingHooks) AINChange(pin uint8, value uint16) {
	h.calls = append(h.calls, fmt.Sprintf("ain %d=%d", pin, value))
}

type recordingHandler struct {
	requests []Request
	reply    uint8
}

func (r *recordingHandler) handle(ctx context.Context, n *Node, req Request) error {
	r.requests = append(r.requests, req)
	return n.SendAck(ctx, req.Master, r.reply, Message{}, 0)
}

func TestHandler_Unconfigured(t *testing.T) {
	t.Parallel()

	node, err := New(NewMockTransport())
	require.NoError(t, err)
	require.ErrorIs(t, node.Handler(context.Background(), nil), ErrNotConfigured)
}

func TestHandler_LockExclusion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	node, mock := newTestNode(t, 0x05, WithLockIdlePolls(3))
	handler := &recordingHandler{reply: AckRead}

	// master in slot 2 locks the slave
	mock.Deliver(requestFrame(t, 0x05, 2, TOSSpecial, uint16(ETOSLock)))
	require.NoError(t, node.Handler(ctx, handler.handle))
	ms, locked := node.Locked()
	require.True(t, locked)
	assert.Equal(t, uint8(2), ms)

	// master in slot 5 is turned away
	mock.ClearSent()
	mock.Deliver(requestFrame(t, 0x05, 5, TOSRAMRead, 0x10, 4))
	require.NoError(t, node.Handler(ctx, handler.handle))

	sent := decodeSent(t, mock)
	require.Len(t, sent, 1)
	assert.Equal(t, FrameID{Control: 0x05, TOS: AckRetry, Node: 0x50, Ack: true}, sent[0])
	assert.Zero(t, mock.Sent()[0].Len)
	assert.Empty(t, handler.requests, "callback never sees the rejected request")
	ms, locked = node.Locked()
	assert.True(t, locked)
	assert.Equal(t, uint8(2), ms, "lock state untouched")
	assert.Equal(t, uint64(1), node.GetMetrics().LockRejections)

	// an unlock from the wrong master is rejected too
	mock.ClearSent()
	mock.Deliver(requestFrame(t, 0x05, 5, TOSSpecial, uint16(ETOSUnlock)))
	require.NoError(t, node.Handler(ctx, handler.handle))
	_, locked = node.Locked()
	assert.True(t, locked)

	// the holder is served normally
	mock.ClearSent()
	mock.Deliver(requestFrame(t, 0x05, 2, TOSRAMRead, 0x10, 4))
	require.NoError(t, node.Handler(ctx, handler.handle))
	require.Len(t, handler.requests, 1)
	assert.Equal(t, NodeID(0x20), handler.requests[0].Master)
	sent = decodeSent(t, mock)
	require.Len(t, sent, 1)
	assert.Equal(t, AckRead, sent[0].TOS)

	// and can release the lock
	mock.Deliver(requestFrame(t, 0x05, 2, TOSSpecial, uint16(ETOSUnlock)))
	require.NoError(t, node.Handler(ctx, handler.handle))
	_, locked = node.Locked()
	assert.False(t, locked)
}

func TestHandler_LockIdlePolls(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05, WithLockIdlePolls(25))
	mock.Deliver(requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSLock)))

	before := mock.PollCount(QueueRequest)
	require.NoError(t, node.Handler(context.Background(), nil))
	// one poll for the lock, 25 idle polls, and the final empty one
	assert.Equal(t, 27, mock.PollCount(QueueRequest)-before)

	// unlocked nodes return on the first empty poll
	node.Reset()
	before = mock.PollCount(QueueRequest)
	require.NoError(t, node.Handler(context.Background(), nil))
	assert.Equal(t, 1, mock.PollCount(QueueRequest)-before)
}

func TestHandler_ETOSLengthValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		want   string
		etos   uint8
		length int
	}{
		{name: "notify event", etos: ETOSNotifyEvent, length: 3, want: "event 01 02 03"},
		{name: "notify sysex", etos: ETOSNotifySysEx, length: 1, want: "sysex 01"},
		{name: "din toggle", etos: ETOSDINToggle, length: 2, want: "din 1=2"},
		{name: "encoder change", etos: ETOSEncChange, length: 2, want: "enc 1+2"},
		{name: "ain change", etos: ETOSAINChange, length: 3, want: "ain 1=770"},
	}

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for dlc := 0; dlc <= 8; dlc++ {
				hooks := &recordingHooks{}
				node, mock := newTestNode(t, 0x05, WithHooks(hooks))
				mock.Deliver(requestFrame(t, 0x05, 0, TOSSpecial, uint16(tt.etos), payload[:dlc]...))
				require.NoError(t, node.Handler(context.Background(), nil))

				sent := decodeSent(t, mock)
				require.Len(t, sent, 1)
				if dlc == tt.length {
					assert.Equal(t, AckOK, sent[0].TOS, "dlc %d", dlc)
					assert.Equal(t, []string{tt.want}, hooks.calls)
				} else {
					assert.Equal(t, AckError, sent[0].TOS, "dlc %d", dlc)
					assert.Empty(t, hooks.calls, "hook must not run with dlc %d", dlc)
				}
			}
		})
	}
}

func TestHandler_SpecialDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		control   uint16
		wantTOS   uint8
		forwarded bool
		hook      string
	}{
		{name: "init", control: uint16(ETOSInit), wantTOS: AckOK, hook: "init"},
		{name: "init ignores the high control byte", control: 0xab00 | uint16(ETOSInit), wantTOS: AckOK, hook: "init"},
		{name: "reserved 0x02", control: 0x02, wantTOS: AckError},
		{name: "reserved 0x03", control: 0x03, wantTOS: AckError},
		{name: "unimplemented 0x05", control: 0x05, wantTOS: AckError},
		{name: "reserved 0x0b", control: 0x0b, wantTOS: AckError},
		{name: "reserved 0x0e", control: 0x0e, wantTOS: AckError},
		{name: "clone", control: uint16(ETOSClone), wantTOS: AckError},
		{name: "first application code", control: 0x10, wantTOS: AckRead, forwarded: true},
		{name: "application code with parameter", control: 0x12ff, wantTOS: AckRead, forwarded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hooks := &recordingHooks{}
			handler := &recordingHandler{reply: AckRead}
			node, mock := newTestNode(t, 0x05, WithHooks(hooks))
			mock.Deliver(requestFrame(t, 0x05, 0, TOSSpecial, tt.control))
			require.NoError(t, node.Handler(context.Background(), handler.handle))

			sent := decodeSent(t, mock)
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantTOS, sent[0].TOS)
			assert.Equal(t, tt.forwarded, len(handler.requests) == 1)
			if tt.forwarded {
				assert.Equal(t, tt.control, handler.requests[0].Control, "control forwarded verbatim")
			}
			if tt.hook != "" {
				assert.Equal(t, []string{tt.hook}, hooks.calls)
			} else {
				assert.Empty(t, hooks.calls)
			}
		})
	}
}

func TestHandler_ForwardedServices(t *testing.T) {
	t.Parallel()

	for _, tos := range []uint8{TOSRAMRead, TOSRAMWrite, TOSPing} {
		handler := &recordingHandler{reply: AckOK}
		node, mock := newTestNode(t, 0x05)
		mock.Deliver(requestFrame(t, 0x05, 3, tos, 0x0100, 0xaa, 0xbb))
		require.NoError(t, node.Handler(context.Background(), handler.handle))

		require.Len(t, handler.requests, 1, "tos %d", tos)
		req := handler.requests[0]
		assert.Equal(t, tos, req.TOS)
		assert.Equal(t, NodeID(0x30), req.Master)
		assert.Equal(t, uint8(3), req.MS)
		assert.Equal(t, uint16(0x0100), req.Control)
		assert.Equal(t, []byte{0xaa, 0xbb}, req.Data())
		assert.Equal(t, 1, mock.SentCount(), "the callback owns the single acknowledge")
	}
}

func TestHandler_NilCallback(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05)
	mock.Deliver(requestFrame(t, 0x05, 0, TOSPing, 0))
	require.NoError(t, node.Handler(context.Background(), nil))

	sent := decodeSent(t, mock)
	require.Len(t, sent, 1)
	assert.Equal(t, AckError, sent[0].TOS)
}

func TestHandler_CallbackErrorKeepsDispatching(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05)
	mock.Deliver(requestFrame(t, 0x05, 0, TOSRAMRead, 0, 1))
	mock.Deliver(requestFrame(t, 0x05, 0, TOSRAMRead, 0, 1))

	calls := 0
	err := node.Handler(context.Background(), func(context.Context, *Node, Request) error {
		calls++
		return errors.New("application failure")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(2), node.GetMetrics().CallbackErrors)
}

func TestHandler_DrainsQueue(t *testing.T) {
	t.Parallel()

	hooks := &recordingHooks{}
	node, mock := newTestNode(t, 0x05, WithHooks(hooks))
	for i := 0; i < 5; i++ {
		mock.Deliver(requestFrame(t, 0x05, 0, TOSSpecial, uint16(ETOSNotifySysEx), byte(i)))
	}
	require.NoError(t, node.Handler(context.Background(), nil))

	assert.Len(t, hooks.calls, 5)
	assert.Equal(t, 5, mock.SentCount())
	assert.Equal(t, uint64(5), node.GetMetrics().RequestsHandled)
}

func TestHandler_DropsMalformedFrames(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05)
	mock.Enqueue(QueueRequest, Frame{ID: 0x0a})
	require.NoError(t, node.Handler(context.Background(), nil))

	assert.Zero(t, mock.SentCount())
	assert.Equal(t, uint64(1), node.GetMetrics().RequestsDropped)
}

func TestHandler_TransportFailure(t *testing.T) {
	t.Parallel()

	node, mock := newTestNode(t, 0x05)
	mock.Deliver(requestFrame(t, 0x05, 0, TOSSpecial, uint16(ETOSInit)))
	mock.SetSendError(NewTransportError("send", "mock", ErrTransportWrite, ErrorTypePermanent))

	err := node.Handler(context.Background(), nil)
	require.ErrorIs(t, err, ErrTransportWrite)
}

func TestSendAck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	node, mock := newTestNode(t, 0x05)

	require.NoError(t, node.SendAck(ctx, 0x50, AckRead, Message{1, 2}, 2))
	sent := decodeSent(t, mock)
	require.Len(t, sent, 1)
	assert.Equal(t, FrameID{Control: 0x05, TOS: AckRead, MS: 0, Node: 0x50, Ack: true}, sent[0])
	assert.Equal(t, uint8(2), mock.Sent()[0].Len)

	for _, target := range []NodeID{0x01, 0x0f, 0x51, 0x80} {
		require.ErrorIs(t, node.SendAck(ctx, target, AckOK, Message{}, 0), ErrInvalidTarget, "target %v", target)
	}
	assert.Equal(t, 1, mock.SentCount())

	unconfigured, err := New(NewMockTransport())
	require.NoError(t, err)
	require.ErrorIs(t, unconfigured.SendAck(ctx, 0x00, AckOK, Message{}, 0), ErrNotConfigured)
}

func TestHandler_DefaultHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	node, mock := newTestNode(t, 0x05, WithHooks(nil))

	requests := []Frame{
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSInit)),
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSNotifyEvent), 0x90, 0x3c, 0x7f),
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSNotifySysEx), 0xf0),
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSDINToggle), 3, 1),
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSEncChange), 2, 0xff),
		requestFrame(t, 0x05, 1, TOSSpecial, uint16(ETOSAINChange), 7, 0x34, 0x12),
	}
	for _, f := range requests {
		mock.Deliver(f)
		require.NotPanics(t, func() {
			require.NoError(t, node.Handler(ctx, nil))
		})
	}

	sent := decodeSent(t, mock)
	require.Len(t, sent, len(requests))
	for _, id := range sent {
		assert.Equal(t, AckOK, id.TOS)
	}
}
