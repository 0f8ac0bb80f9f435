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
)

// Hooks are the application functions behind the built-in special
// requests. They are only called with correctly sized payloads.
type Hooks interface {
	Init()
	NotifyReceivedEvent(event [3]byte)
	NotifyReceivedSysEx(b byte)
	DINToggle(pin, value uint8)
	EncoderChange(encoder uint8, increment int8)
	AINChange(pin uint8, value uint16)
}

// NopHooks ignores every notification
type NopHooks struct{}

// Init implements Hooks
func (NopHooks) Init() {}

// NotifyReceivedEvent implements Hooks
func (NopHooks) NotifyReceivedEvent([3]byte) {}

// NotifyReceivedSysEx implements Hooks
func (NopHooks) NotifyReceivedSysEx(byte) {}

// DINToggle implements Hooks
func (NopHooks) DINToggle(_, _ uint8) {}

// EncoderChange implements Hooks
func (NopHooks) EncoderChange(uint8, int8) {}

// AINChange implements Hooks
func (NopHooks) AINChange(uint8, uint16) {}

// Request is an incoming request handed to a RequestHandler
type Request struct {
	Msg     Message
	Control uint16
	Master  NodeID
	MS      uint8
	TOS     uint8
	Len     uint8
}

// ETOS returns the sub-command of a special request
func (r Request) ETOS() uint8 {
	return uint8(r.Control & 0xff)
}

// Data returns the request payload bytes
func (r Request) Data() []byte {
	return r.Msg[:min(int(r.Len), len(r.Msg))]
}

// RequestHandler receives RAM read, RAM write, ping and application
// defined special requests. It owns the acknowledge and answers through
// n.SendAck. Returned errors are logged and counted; dispatching goes on.
type RequestHandler func(ctx context.Context, n *Node, req Request) error

// lockState tracks which master holds the slave lock
type lockState struct {
	ms   uint8
	held bool
}

// Locked returns the master slot holding the lock
func (n *Node) Locked() (ms uint8, ok bool) {
	return n.lock.ms, n.lock.held
}

// Handler is the periodic entry point of the slave role. On a master with
// discovery enabled one scan step runs first. The request queue is then
// drained. While the slave is locked an empty queue is polled up to
// LockIdlePolls more times so the next command of the holder is not
// missed; the lock survives the return.
func (n *Node) Handler(ctx context.Context, cb RequestHandler) error {
	if !n.idSet {
		return ErrNotConfigured
	}

	var scanErr error
	if n.id.IsMaster() && n.config.Discovery.Enabled {
		if err := n.ScanStep(ctx); err != nil {
			scanErr = err
			if n.log != nil {
				n.log.Error().Err(err).Str("node", n.idString()).Msg("discovery step failed")
			}
		}
	}

	idle := 0
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(scanErr, err)
		}

		f, ok, err := n.transport.TryReceive(QueueRequest)
		if err != nil {
			return errors.Join(scanErr, fmt.Errorf("failed to poll request queue: %w", err))
		}

		if !ok {
			if !n.lock.held || idle >= n.config.LockIdlePolls {
				return scanErr
			}
			idle++
			if err := n.pause(ctx, n.config.AckPollInterval); err != nil {
				return errors.Join(scanErr, err)
			}
			continue
		}

		idle = 0
		if err := n.dispatch(ctx, f, cb); err != nil {
			return errors.Join(scanErr, err)
		}
	}
}

// dispatch handles one request frame. Only transport failures are
// returned.
func (n *Node) dispatch(ctx context.Context, f Frame, cb RequestHandler) error {
	id, err := f.FrameID()
	if err != nil || id.Ack {
		n.metrics.requestsDropped.Add(1)
		if n.log != nil {
			n.log.Debug().Str("node", n.idString()).Str("frame", f.String()).Msg("request dropped")
		}
		return nil
	}

	req := Request{
		Master:  id.Master(),
		MS:      id.MS,
		TOS:     id.TOS,
		Control: id.Control,
		Msg:     f.Message(),
		Len:     f.Len,
	}

	if n.lock.held && req.MS != n.lock.ms {
		n.metrics.lockRejections.Add(1)
		if n.log != nil {
			n.log.Debug().
				Str("node", n.idString()).
				Uint8("ms", req.MS).
				Uint8("holder", n.lock.ms).
				Msg("request rejected, locked by another master")
		}
		return n.SendAck(ctx, req.Master, AckRetry, Message{}, 0)
	}

	n.metrics.requestsHandled.Add(1)
	switch req.TOS {
	case TOSSpecial:
		return n.dispatchSpecial(ctx, req, cb)
	case TOSRAMRead, TOSRAMWrite, TOSPing:
		return n.forward(ctx, req, cb)
	default:
		return n.ackError(ctx, req)
	}
}

func (n *Node) dispatchSpecial(ctx context.Context, req Request, cb RequestHandler) error {
	msg := req.Msg
	switch etos := req.ETOS(); etos {
	case ETOSLock:
		n.lock = lockState{held: true, ms: req.MS}
		n.logLock("locked", req.MS)
	case ETOSUnlock:
		n.lock = lockState{}
		n.logLock("unlocked", req.MS)
	case ETOSInit:
		n.hooks.Init()
	case ETOSNotifyEvent:
		if req.Len != 3 {
			return n.ackError(ctx, req)
		}
		n.hooks.NotifyReceivedEvent([3]byte{msg[0], msg[1], msg[2]})
	case ETOSNotifySysEx:
		if req.Len != 1 {
			return n.ackError(ctx, req)
		}
		n.hooks.NotifyReceivedSysEx(msg[0])
	case ETOSDINToggle:
		if req.Len != 2 {
			return n.ackError(ctx, req)
		}
		n.hooks.DINToggle(msg[0], msg[1])
	case ETOSEncChange:
		if req.Len != 2 {
			return n.ackError(ctx, req)
		}
		n.hooks.EncoderChange(msg[0], int8(msg[1]))
	case ETOSAINChange:
		if req.Len != 3 {
			return n.ackError(ctx, req)
		}
		n.hooks.AINChange(msg[0], uint16(msg[1])|uint16(msg[2])<<8)
	default:
		if etos >= ETOSUserBase {
			return n.forward(ctx, req, cb)
		}
		// reserved codes and clone
		return n.ackError(ctx, req)
	}
	return n.SendAck(ctx, req.Master, AckOK, Message{}, 0)
}

// forward hands the request to the application, which answers it
func (n *Node) forward(ctx context.Context, req Request, cb RequestHandler) error {
	if cb == nil {
		if n.log != nil {
			n.log.Debug().Err(ErrNoCallback).Str("node", n.idString()).Uint8("tos", req.TOS).Msg("request refused")
		}
		return n.ackError(ctx, req)
	}

	if err := cb(ctx, n, req); err != nil {
		if isTransportFailure(err) {
			return err
		}
		n.metrics.callbackErrors.Add(1)
		if n.log != nil {
			n.log.Error().
				Err(err).
				Str("node", n.idString()).
				Str("master", req.Master.String()).
				Uint8("tos", req.TOS).
				Msg("request callback failed")
		}
	}
	return nil
}

func (n *Node) ackError(ctx context.Context, req Request) error {
	return n.SendAck(ctx, req.Master, AckError, Message{}, 0)
}

func (n *Node) logLock(event string, ms uint8) {
	if n.log != nil {
		n.log.Debug().Str("node", n.idString()).Uint8("ms", ms).Msg(event)
	}
}

// isTransportFailure reports errors that make further dispatching pointless
func isTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrTransportClosed)
}
