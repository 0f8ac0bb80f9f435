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

	"github.com/loopholelabs/logging/types"
)

// LoggedTransport decorates a Transport and traces every frame
type LoggedTransport struct {
	Transport
	log  types.Logger
	name string
}

// NewLoggedTransport wraps t. name identifies the bus in the log.
func NewLoggedTransport(t Transport, name string, log types.Logger) *LoggedTransport {
	return &LoggedTransport{Transport: t, name: name, log: log}
}

// Send implements Transport
func (l *LoggedTransport) Send(ctx context.Context, f Frame) error {
	err := l.Transport.Send(ctx, f)
	if l.log != nil {
		l.log.Trace().Str("bus", l.name).Str("frame", f.String()).Err(err).Msg("can.Send")
	}
	return err
}

// TryReceive implements Transport
func (l *LoggedTransport) TryReceive(q Queue) (Frame, bool, error) {
	f, ok, err := l.Transport.TryReceive(q)
	if l.log != nil && (ok || err != nil) {
		l.log.Trace().Str("bus", l.name).Str("queue", q.String()).Str("frame", f.String()).Err(err).Msg("can.Receive")
	}
	return f, ok, err
}

// SetFilter implements Transport
func (l *LoggedTransport) SetFilter(q Queue, filter AcceptanceFilter) error {
	err := l.Transport.SetFilter(q, filter)
	if l.log != nil {
		l.log.Debug().
			Str("bus", l.name).
			Str("queue", q.String()).
			Uint32("id", filter.ID).
			Uint32("mask", filter.Mask).
			Err(err).
			Msg("can.SetFilter")
	}
	return err
}

// Timing forwards the timing of the wrapped transport
func (l *LoggedTransport) Timing() TransportTiming {
	return TimingFor(l.Transport)
}
