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

// Package socketcan detects Linux SocketCAN network interfaces
package socketcan

import (
	"context"

	"github.com/ZaparooProject/go-mbnet/detection"
)

// detector implements the Detector interface for SocketCAN interfaces
type detector struct {
	sysfsRoot string
}

// New creates a new SocketCAN detector
func New() detection.Detector {
	return &detector{sysfsRoot: "/sys/class/net"}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "socketcan"
}

// Detect lists CAN network interfaces. Interfaces that are up rank above
// the ones that still need "ip link set up".
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	return detectInterfaces(ctx, d.sysfsRoot, opts)
}
