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

	itransport "github.com/ZaparooProject/go-mbnet/internal/transport"
)

// send encodes and transmits one frame
func (n *Node) send(ctx context.Context, id FrameID, msg Message, dlc uint8) error {
	f, err := NewFrame(id, msg, dlc)
	if err != nil {
		return err
	}
	return n.transmit(ctx, f)
}

// transmit hands f to the transport, retrying while every mailbox is busy.
// The wait is bounded by TransmitTimeout.
func (n *Node) transmit(ctx context.Context, f Frame) error {
	_, err := itransport.TimeoutRetry(ctx, n.config.TransmitTimeout, n.config.TransmitRetryDelay,
		func() (struct{}, bool, error) {
			sendErr := n.transport.Send(ctx, f)
			switch {
			case sendErr == nil:
				return struct{}{}, false, nil
			case errors.Is(sendErr, ErrMailboxBusy):
				n.metrics.mailboxBusy.Add(1)
				return struct{}{}, true, nil
			default:
				return struct{}{}, false, sendErr
			}
		})

	if errors.Is(err, itransport.ErrDeadline) {
		if n.log != nil {
			n.log.Warn().
				Str("node", n.idString()).
				Str("frame", f.String()).
				Int64("timeout_us", n.config.TransmitTimeout.Microseconds()).
				Msg("no free transmit mailbox")
		}
		return NewTimeoutError("send", string(n.transport.Type()))
	}
	if err != nil {
		return err
	}

	n.metrics.framesSent.Add(1)
	return nil
}
