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
	"time"

	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// PollStatus is the outcome of a single acknowledge poll
type PollStatus int

const (
	// PollPending means no acknowledge from the slave was queued
	PollPending PollStatus = iota
	// PollSuccess means an acknowledge other than AckRetry arrived
	PollSuccess
	// PollRetry means the slave asked for the request to be sent again
	PollRetry
)

func (s PollStatus) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSuccess:
		return "success"
	case PollRetry:
		return "retry"
	default:
		return fmt.Sprintf("PollStatus(%d)", int(s))
	}
}

// Ack is an acknowledge received from a slave
type Ack struct {
	Msg     Message
	Control uint16
	From    NodeID
	TOS     uint8
	Len     uint8
}

// Data returns the acknowledged payload bytes
func (a Ack) Data() []byte {
	return a.Msg[:min(int(a.Len), frame.MaxDataLength)]
}

// Err returns ErrAckError if the slave answered with AckError
func (a Ack) Err() error {
	if a.TOS == AckError {
		return fmt.Errorf("%w: from %v", ErrAckError, a.From)
	}
	return nil
}

// pendingRequest is the one request in flight, kept for SendReqAgain
type pendingRequest struct {
	msg    Message
	id     FrameID
	slave  NodeID
	length uint8
}

// staleAckLimit bounds the flush so a chattering bus cannot stall SendReq
const staleAckLimit = 64

// SendReq sends a request to slave and remembers it as the pending
// request. The node has to be a configured master.
func (n *Node) SendReq(ctx context.Context, slave NodeID, tos uint8, control uint16, msg Message, dlc uint8) error {
	my, err := n.masterID()
	if err != nil {
		return err
	}
	if err := slave.Validate(); err != nil {
		return err
	}

	id := FrameID{
		Control: control,
		TOS:     tos,
		MS:      my.MasterSlot(),
		Node:    slave,
	}
	f, err := NewFrame(id, msg, dlc)
	if err != nil {
		return err
	}

	if n.config.FlushStaleAcks {
		n.flushStaleAcks()
	}

	n.pending = &pendingRequest{slave: slave, id: id, msg: f.Message(), length: dlc}
	if err := n.transmit(ctx, f); err != nil {
		return fmt.Errorf("failed to send request to %v: %w", slave, err)
	}

	n.metrics.requestsSent.Add(1)
	return nil
}

// SendReqAgain retransmits the pending request. slave must match the
// target of the pending request.
func (n *Node) SendReqAgain(ctx context.Context, slave NodeID) error {
	if _, err := n.masterID(); err != nil {
		return err
	}
	if n.pending == nil {
		return fmt.Errorf("%w: nothing pending for %v", ErrSequence, slave)
	}
	if n.pending.slave != slave {
		return fmt.Errorf("%w: pending request targets %v, not %v", ErrSequence, n.pending.slave, slave)
	}

	p := n.pending
	if err := n.send(ctx, p.id, p.msg, p.length); err != nil {
		return fmt.Errorf("failed to resend request to %v: %w", slave, err)
	}

	n.metrics.resends.Add(1)
	if n.log != nil {
		n.log.Debug().
			Str("node", n.idString()).
			Str("slave", slave.String()).
			Uint8("tos", p.id.TOS).
			Msg("request resent")
	}
	return nil
}

// WaitAckNonBlocking polls the acknowledge queue once. Acknowledges from
// nodes other than slave are dropped.
func (n *Node) WaitAckNonBlocking(slave NodeID) (PollStatus, Ack, error) {
	if !n.idSet {
		return PollPending, Ack{}, ErrNotConfigured
	}

	f, ok, err := n.transport.TryReceive(QueueAck)
	if err != nil {
		return PollPending, Ack{}, fmt.Errorf("failed to poll acknowledge queue: %w", err)
	}
	if !ok {
		return PollPending, Ack{}, nil
	}

	id, err := f.FrameID()
	if err != nil || !id.Ack {
		n.discardAck(f, "malformed")
		return PollPending, Ack{}, nil
	}
	if id.Sender() != slave {
		n.discardAck(f, "unexpected sender")
		return PollPending, Ack{}, nil
	}

	n.metrics.acksReceived.Add(1)
	ack := Ack{
		From:    id.Sender(),
		TOS:     id.TOS,
		Control: id.Control,
		Msg:     f.Message(),
		Len:     f.Len,
	}
	if id.TOS == AckRetry {
		return PollRetry, ack, nil
	}
	return PollSuccess, ack, nil
}

// WaitAck polls for the acknowledge of the pending request. Every
// AckRetry answer resends the request and restarts the poll budget. When
// the budget runs out without an answer ErrTimeout is returned.
func (n *Node) WaitAck(ctx context.Context, slave NodeID) (Ack, error) {
	budget := n.config.AckPollBudget

	for polls := 0; polls < budget; {
		if err := ctx.Err(); err != nil {
			return Ack{}, err
		}

		status, ack, err := n.WaitAckNonBlocking(slave)
		if err != nil {
			return Ack{}, err
		}

		switch status {
		case PollSuccess:
			return ack, nil
		case PollRetry:
			if err := n.SendReqAgain(ctx, slave); err != nil {
				return Ack{}, err
			}
			polls = 0
			continue
		case PollPending:
		}

		polls++
		if err := n.pause(ctx, n.config.AckPollInterval); err != nil {
			return Ack{}, err
		}
	}

	n.metrics.timeouts.Add(1)
	if n.log != nil {
		n.log.Warn().
			Str("node", n.idString()).
			Str("slave", slave.String()).
			Int("polls", budget).
			Msg("acknowledge timeout")
	}
	return Ack{}, fmt.Errorf("%w: no answer from %v after %d polls", ErrTimeout, slave, budget)
}

// Request sends a request and waits for its acknowledge
func (n *Node) Request(ctx context.Context, slave NodeID, tos uint8, control uint16, msg Message, dlc uint8) (Ack, error) {
	if err := n.SendReq(ctx, slave, tos, control, msg, dlc); err != nil {
		return Ack{}, err
	}
	return n.WaitAck(ctx, slave)
}

// Ping asks slave for its identification
func (n *Node) Ping(ctx context.Context, slave NodeID) (Pong, error) {
	ack, err := n.Request(ctx, slave, TOSPing, 0, Message{}, 0)
	if err != nil {
		return Pong{}, err
	}
	if err := ack.Err(); err != nil {
		return Pong{}, err
	}
	return ack.Msg.Pong(), nil
}

// SendSpecial sends a special request. The low byte of control selects
// the sub-command.
func (n *Node) SendSpecial(ctx context.Context, slave NodeID, control uint16, msg Message, dlc uint8) (Ack, error) {
	ack, err := n.Request(ctx, slave, TOSSpecial, control, msg, dlc)
	if err != nil {
		return Ack{}, err
	}
	return ack, ack.Err()
}

// Lock reserves slave for this master
func (n *Node) Lock(ctx context.Context, slave NodeID) error {
	_, err := n.SendSpecial(ctx, slave, uint16(ETOSLock), Message{}, 0)
	return err
}

// Unlock releases a lock taken with Lock
func (n *Node) Unlock(ctx context.Context, slave NodeID) error {
	_, err := n.SendSpecial(ctx, slave, uint16(ETOSUnlock), Message{}, 0)
	return err
}

// ReadRAM reads length bytes (1..8) at addr of slave. The address goes
// into Control, the length into the first payload byte; the slave
// answers AckRead with the data.
func (n *Node) ReadRAM(ctx context.Context, slave NodeID, addr uint16, length uint8) ([]byte, error) {
	if length == 0 || length > frame.MaxDataLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	ack, err := n.Request(ctx, slave, TOSRAMRead, addr, Message{length}, 1)
	if err != nil {
		return nil, err
	}
	if err := ack.Err(); err != nil {
		return nil, err
	}
	if ack.Len < length {
		return nil, fmt.Errorf("%w: asked for %d bytes, got %d", ErrInvalidLength, length, ack.Len)
	}
	return append([]byte(nil), ack.Msg[:length]...), nil
}

// WriteRAM writes up to eight bytes at addr of slave
func (n *Node) WriteRAM(ctx context.Context, slave NodeID, addr uint16, data []byte) error {
	if len(data) == 0 || len(data) > frame.MaxDataLength {
		return fmt.Errorf("%w: %d", ErrInvalidLength, len(data))
	}

	var msg Message
	copy(msg[:], data)
	ack, err := n.Request(ctx, slave, TOSRAMWrite, addr, msg, uint8(len(data)))
	if err != nil {
		return err
	}
	return ack.Err()
}

// flushStaleAcks drops acknowledges queued before a new request goes out.
// With a single request in flight none of them can belong to it.
func (n *Node) flushStaleAcks() {
	for i := 0; i < staleAckLimit; i++ {
		f, ok, err := n.transport.TryReceive(QueueAck)
		if err != nil || !ok {
			return
		}
		n.discardAck(f, "stale")
	}
}

func (n *Node) discardAck(f Frame, reason string) {
	n.metrics.acksDiscarded.Add(1)
	if n.log != nil {
		n.log.Debug().
			Str("node", n.idString()).
			Str("frame", f.String()).
			Str("reason", reason).
			Msg("acknowledge discarded")
	}
}

// pause sleeps d unless ctx is done first
func (*Node) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
