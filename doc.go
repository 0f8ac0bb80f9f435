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

/*
Package mbnet implements MBNet, a master/slave request-acknowledge protocol
carried over extended CAN frames.

One controller (the master) discovers, pings, locks and exchanges data with
up to 127 peripheral controllers (slaves). Every exchange is one request
frame and one acknowledge frame. A busy slave answers AckRetry and the
master resends right away; a silent slave runs the master into a local
poll budget and ErrTimeout.

Features:
  - 29-bit identifier codec with reserved bit validation
  - Master request engine with automatic resend on AckRetry
  - Background slave discovery with a bounded retry budget per candidate
  - Slave dispatcher with single master locking and built-in sub-commands
  - Transports: SocketCAN, SLCAN serial adapters, MCP2515 on SPI and an
    in-memory loopback bus

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-mbnet"
	    "github.com/ZaparooProject/go-mbnet/transport/socketcan"
	)

	transport, err := socketcan.New("can0")
	if err != nil {
	    log.Fatal(err)
	}

	node, err := mbnet.New(transport, mbnet.WithNodeID(0x00))
	if err != nil {
	    log.Fatal(err)
	}
	defer node.Close()

	pong, err := node.Ping(ctx, 0x05)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Printf("slave 0x05 is a %q v%d.%d\n", pong.Type(), pong.NodeVersion, pong.NodeSubversion)

Slaves and dual role masters call Handler periodically, for instance from
a polling.Runner:

	err := node.Handler(ctx, mbnet.NewMemoryResponder(pong, 256).Handle)

Error Handling:

All operations return errors that can be inspected:

	if errors.Is(err, mbnet.ErrTimeout) {
	    // slave did not answer within the poll budget
	}

Thread Safety:

Node operations are not thread-safe. Run Handler and the master
operations from one goroutine.
*/
package mbnet
