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

import "time"

// TransportTiming holds the poll and transmit timing a transport needs to
// give the remote side wall clock time to answer
type TransportTiming struct {
	AckPollInterval    time.Duration
	TransmitRetryDelay time.Duration
	TransmitTimeout    time.Duration
}

// TransportTimingProvider is implemented by transports that know their
// own timing
type TransportTimingProvider interface {
	Timing() TransportTiming
}

// TimingFor returns the timing used for t: its own when it provides one,
// a per type default otherwise
func TimingFor(t Transport) TransportTiming {
	if provider, ok := t.(TransportTimingProvider); ok {
		return provider.Timing()
	}

	switch t.Type() {
	case TransportSLCAN:
		// USB serial round trips are the slowest of the lot
		return TransportTiming{
			AckPollInterval:    100 * time.Microsecond,
			TransmitRetryDelay: 200 * time.Microsecond,
			TransmitTimeout:    250 * time.Millisecond,
		}

	case TransportMCP2515:
		return TransportTiming{
			AckPollInterval:    50 * time.Microsecond,
			TransmitRetryDelay: 50 * time.Microsecond,
			TransmitTimeout:    100 * time.Millisecond,
		}

	case TransportSocketCAN:
		return TransportTiming{
			AckPollInterval:    20 * time.Microsecond,
			TransmitRetryDelay: 20 * time.Microsecond,
			TransmitTimeout:    100 * time.Millisecond,
		}

	case TransportLoopback, TransportMock:
		// frames are delivered synchronously, no need to wait
		return TransportTiming{TransmitTimeout: 10 * time.Millisecond}

	default:
		d := DefaultConfig()
		return TransportTiming{
			AckPollInterval:    d.AckPollInterval,
			TransmitRetryDelay: d.TransmitRetryDelay,
			TransmitTimeout:    d.TransmitTimeout,
		}
	}
}

// applyTransportTiming seeds the config with the transport defaults;
// options applied afterwards override them
func (n *Node) applyTransportTiming() {
	timing := TimingFor(n.transport)
	n.config.AckPollInterval = timing.AckPollInterval
	n.config.TransmitRetryDelay = timing.TransmitRetryDelay
	n.config.TransmitTimeout = timing.TransmitTimeout
}
