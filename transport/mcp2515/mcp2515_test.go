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

package mcp2515

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mbnet"
)

// fakeChip emulates the register file and SPI instruction set of an
// MCP2515 closely enough for the transport: operating modes, acceptance
// filters, receive buffers and transmit buffers.
type fakeChip struct {
	txErr     error
	sent      []mbnet.Frame
	regs      [128]byte
	overflows int
	mu        sync.Mutex
	holdTX    bool
	stuckMode bool
	closed    bool
}

func newFakeChip() *fakeChip {
	c := &fakeChip{}
	c.powerOn()
	return c
}

func (c *fakeChip) powerOn() {
	c.regs = [128]byte{}
	c.regs[regCANSTAT] = modeConfig
	c.regs[regCANCTRL] = 0x87
}

func (c *fakeChip) writeReg(addr, v byte) {
	c.regs[addr&0x7F] = v
	if addr == regCANCTRL && !c.stuckMode {
		c.regs[regCANSTAT] = c.regs[regCANSTAT]&^modeMask | v&modeMask
	}
}

func (c *fakeChip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txErr != nil {
		return c.txErr
	}
	clear(r)

	op := w[0]
	switch {
	case op == instReset:
		c.powerOn()
	case op == instRead:
		for i := 2; i < len(w); i++ {
			r[i] = c.regs[(int(w[1])+i-2)&0x7F]
		}
	case op == instWrite:
		for i, v := range w[2:] {
			c.writeReg(w[1]+byte(i), v)
		}
	case op == instBitModify:
		addr, mask, data := w[1], w[2], w[3]
		c.writeReg(addr, c.regs[addr]&^mask|data&mask)
	case op == instReadStatus:
		r[1] = c.status()
	case op == instReadRXB0 || op == instReadRXB1:
		base, flag := byte(0x61), byte(statusRX0IF)
		if op == instReadRXB1 {
			base, flag = 0x71, statusRX1IF
		}
		copy(r[1:], c.regs[base:int(base)+rxBufferLen])
		c.regs[regCANINTF] &^= flag
	case op&0xF8 == instLoadTX:
		slot := (op >> 1) & 0x03
		copy(c.regs[regTXB0CTRL+0x10*slot+1:], w[1:])
	case op&0xF8 == instRTS:
		for slot := byte(0); slot < 3; slot++ {
			if op&(1<<slot) == 0 {
				continue
			}
			ctrl := regTXB0CTRL + 0x10*slot
			c.regs[ctrl] |= txreq
			if !c.holdTX {
				f, err := decodeRX(c.regs[ctrl+1 : int(ctrl)+1+rxBufferLen])
				if err != nil {
					return err
				}
				c.sent = append(c.sent, f)
				c.regs[ctrl] &^= txreq
			}
		}
	default:
		return errors.New("unknown instruction")
	}
	return nil
}

func (c *fakeChip) status() byte {
	var s byte
	s |= c.regs[regCANINTF] & (statusRX0IF | statusRX1IF)
	for slot, bit := range txreqStatus {
		if c.regs[regTXB0CTRL+0x10*slot]&txreq != 0 {
			s |= bit
		}
	}
	return s
}

func (c *fakeChip) matches(f mbnet.Frame, mask byte, filters []byte) bool {
	m, _ := decodeID(c.regs[mask : mask+idLen])
	for _, reg := range filters {
		id, ext := decodeID(c.regs[reg : reg+idLen])
		if ext == f.Extended && f.ID&m == id&m {
			return true
		}
	}
	return false
}

// inject puts f on the bus as seen by the controller
func (c *fakeChip) inject(f mbnet.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.regs[regCANSTAT]&modeMask != modeNormal {
		return false
	}

	var base, flag byte
	switch {
	case c.matches(f, regRXM0, requestFilters):
		base, flag = 0x61, statusRX0IF
	case c.matches(f, regRXM1, ackFilters):
		base, flag = 0x71, statusRX1IF
	default:
		return false
	}
	if c.regs[regCANINTF]&flag != 0 {
		c.overflows++
		return false
	}
	copy(c.regs[base:], encodeTX(f))
	c.regs[regCANINTF] |= flag
	return true
}

func (c *fakeChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChip) sentFrames() []mbnet.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mbnet.Frame(nil), c.sent...)
}

func (c *fakeChip) reg(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr]
}

func newTestTransport(t *testing.T) (*Transport, *fakeChip) {
	t.Helper()
	chip := newFakeChip()
	tr, err := NewWithConn(chip, chip, "spi-fake", DefaultConfig())
	require.NoError(t, err)
	return tr, chip
}

func TestEncodeID_KnownLayout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [idLen]byte{0xFF, 0xEB, 0xFF, 0xFF}, encodeID(0x1FFFFFFF, true))
	assert.Equal(t, [idLen]byte{0x00, 0x08, 0x00, 0x0B}, encodeID(0x0B, true))
	assert.Equal(t, [idLen]byte{0xFF, 0xE0, 0x00, 0x00}, encodeID(0x7FF, false))

	id, ext := decodeID([]byte{0x00, 0x09, 0xA2, 0x0A})
	assert.True(t, ext)
	assert.Equal(t, uint32(0x0001A20A), id)
}

func TestNewWithConn_Init(t *testing.T) {
	t.Parallel()

	_, chip := newTestTransport(t)
	assert.Equal(t, byte(0x00), chip.reg(regCNF1))
	assert.Equal(t, byte(0xF0), chip.reg(regCNF2))
	assert.Equal(t, byte(0x86), chip.reg(regCNF3))
	assert.Equal(t, byte(modeNormal), chip.reg(regCANSTAT)&modeMask)

	// nothing is accepted before the node installs filters
	assert.False(t, chip.inject(mbnet.Frame{ID: 0x0A, Extended: true}))
}

func TestNewWithConn_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewWithConn(newFakeChip(), nil, "spi-fake", Config{Oscillator: 20000000})
	require.Error(t, err)

	stuck := newFakeChip()
	stuck.stuckMode = true
	_, err = NewWithConn(stuck, nil, "spi-fake", Config{ModeRetries: 2})
	require.ErrorIs(t, err, ErrModeChange)

	broken := newFakeChip()
	broken.txErr = errors.New("bus fault")
	_, err = NewWithConn(broken, nil, "spi-fake", DefaultConfig())
	require.ErrorIs(t, err, mbnet.ErrTransportWrite)
}

func TestTransport_SendUsesThreeMailboxes(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	ctx := context.Background()
	f := mbnet.Frame{ID: 0x0001A20A, Extended: true, Len: 2, Data: [8]byte{0xDE, 0xAD}}

	require.NoError(t, tr.Send(ctx, f))
	assert.Equal(t, []mbnet.Frame{f}, chip.sentFrames())

	chip.mu.Lock()
	chip.holdTX = true
	chip.mu.Unlock()
	for range 3 {
		require.NoError(t, tr.Send(ctx, f))
	}
	err := tr.Send(ctx, f)
	require.ErrorIs(t, err, mbnet.ErrMailboxBusy)
	assert.True(t, mbnet.IsRetryable(err))
}

func TestTransport_FilterRouting(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	require.NoError(t, tr.SetFilter(mbnet.QueueRequest, mbnet.RequestFilter(0x05)))
	require.NoError(t, tr.SetFilter(mbnet.QueueAck, mbnet.AckFilter(0x05)))
	assert.Equal(t, byte(modeNormal), chip.reg(regCANSTAT)&modeMask)

	request := mbnet.Frame{ID: 0x3<<13 | 0x05<<1, Extended: true, Len: 1, Data: [8]byte{0x11}}
	ack := mbnet.Frame{ID: 0x21<<13 | 0x05<<1 | 1, Extended: true, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}

	assert.False(t, chip.inject(mbnet.Frame{ID: 0x06 << 1, Extended: true}))
	assert.False(t, chip.inject(mbnet.Frame{ID: 0x0A}), "standard frames never pass")
	require.True(t, chip.inject(request))
	require.True(t, chip.inject(ack))

	got, ok, err := tr.TryReceive(mbnet.QueueAck)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ack, got)

	// the request was drained alongside the ack
	got, ok, err = tr.TryReceive(mbnet.QueueRequest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, request, got)

	_, ok, err = tr.TryReceive(mbnet.QueueRequest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_SoftwareQueueOverrun(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	require.NoError(t, tr.SetFilter(mbnet.QueueRequest, mbnet.RequestFilter(0x05)))

	for i := range 5 {
		require.True(t, chip.inject(mbnet.Frame{ID: uint32(i)<<13 | 0x05<<1, Extended: true}))
		_, ok, err := tr.TryReceive(mbnet.QueueAck)
		require.NoError(t, err)
		require.False(t, ok)
	}
	assert.Equal(t, uint64(2), tr.Overruns(mbnet.QueueRequest))

	f, ok, err := tr.TryReceive(mbnet.QueueRequest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x05<<1), f.ID)

	// an undrained hardware buffer drops the next frame
	require.True(t, chip.inject(mbnet.Frame{ID: 0x05 << 1, Extended: true}))
	assert.False(t, chip.inject(mbnet.Frame{ID: 0x05 << 1, Extended: true}))
	assert.Equal(t, 1, chip.overflows)
}

func TestTransport_SPIFailure(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	chip.mu.Lock()
	chip.txErr = errors.New("spi fault")
	chip.mu.Unlock()

	_, _, err := tr.TryReceive(mbnet.QueueRequest)
	require.ErrorIs(t, err, mbnet.ErrTransportWrite)
	require.ErrorIs(t, tr.Send(context.Background(), mbnet.Frame{Extended: true}), mbnet.ErrTransportWrite)
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	assert.True(t, chip.closed)
	assert.Equal(t, byte(modeConfig), chip.reg(regCANSTAT)&modeMask)
	assert.False(t, tr.IsConnected())
	require.ErrorIs(t, tr.Send(context.Background(), mbnet.Frame{Extended: true}), mbnet.ErrTransportClosed)
	_, _, err := tr.TryReceive(mbnet.QueueAck)
	require.ErrorIs(t, err, mbnet.ErrTransportClosed)
	require.ErrorIs(t, tr.SetFilter(mbnet.QueueAck, mbnet.AckFilter(1)), mbnet.ErrTransportClosed)
	assert.Equal(t, mbnet.TransportMCP2515, tr.Type())
}

func TestTransport_NodeAnswersPing(t *testing.T) {
	t.Parallel()

	tr, chip := newTestTransport(t)
	node, err := mbnet.New(tr, mbnet.WithNodeID(0x05))
	require.NoError(t, err)

	ping, err := mbnet.NewFrame(mbnet.FrameID{TOS: mbnet.TOSPing, MS: 2, Node: 0x05}, mbnet.Message{}, 0)
	require.NoError(t, err)
	require.True(t, chip.inject(ping))

	pong := mbnet.NewPong(1, "M515", 1, 2)
	require.NoError(t, node.Handler(context.Background(), mbnet.PongResponder(pong)))

	want, err := mbnet.NewFrame(mbnet.FrameID{Control: 0x05, TOS: mbnet.AckOK, Node: 0x20, Ack: true},
		pong.Message(), mbnet.PongLength)
	require.NoError(t, err)
	assert.Equal(t, []mbnet.Frame{want}, chip.sentFrames())
}

type floatingBus struct{}

func (floatingBus) Tx(_, r []byte) error {
	for i := range r {
		r[i] = 0xFF
	}
	return nil
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ok, err := Probe(newFakeChip())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Probe(floatingBus{})
	require.NoError(t, err)
	assert.False(t, ok)
}
