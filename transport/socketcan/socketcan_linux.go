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

//go:build linux

package socketcan

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// New opens two raw sockets on iface, e.g. "can0" or "vcan0"
func New(iface string, config Config) (*Transport, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to find interface %s: %w", iface, err)
	}

	req, err := openRaw(ifi.Index, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open request socket on %s: %w", iface, err)
	}
	ack, err := openRaw(ifi.Index, config)
	if err != nil {
		_ = req.Close()
		return nil, fmt.Errorf("failed to open ack socket on %s: %w", iface, err)
	}

	t, err := newTransport(req, ack, iface)
	if err != nil {
		_ = req.Close()
		_ = ack.Close()
		return nil, err
	}
	return t, nil
}

type rawSocket struct {
	fd int
}

func openRaw(ifindex int, config Config) (*rawSocket, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if config.ReceiveBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, config.ReceiveBuffer); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("SO_RCVBUF: %w", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifindex}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	return &rawSocket{fd: fd}, nil
}

func (s *rawSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if errors.Is(err, unix.EAGAIN) {
		return 0, errWouldBlock
	}
	return n, err
}

func (s *rawSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOBUFS) {
		return 0, errTxBusy
	}
	return n, err
}

func (s *rawSocket) SetFilter(rules []filterRule) error {
	filters := make([]unix.CanFilter, 0, len(rules))
	for _, r := range rules {
		filters = append(filters, unix.CanFilter{Id: r.ID, Mask: r.Mask})
	}
	return unix.SetsockoptCanRawFilter(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}

func (s *rawSocket) Close() error {
	return unix.Close(s.fd)
}
