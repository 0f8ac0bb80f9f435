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

// Package mcp2515 detects SPI ports that may carry an MCP2515 controller
package mcp2515

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-mbnet/detection"
	transport "github.com/ZaparooProject/go-mbnet/transport/mcp2515"
)

type detector struct {
	glob  func(pattern string) ([]string, error)
	probe func(port string) (bool, error)
}

// New creates a new MCP2515 detector
func New() detection.Detector {
	return &detector{glob: filepath.Glob, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "mcp2515"
}

// Detect lists spidev nodes. Passive results carry low confidence since
// any SPI peripheral looks alike; Safe mode reads the controller's status
// registers to confirm.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	paths, err := d.glob("/dev/spidev*")
	if err != nil {
		return nil, fmt.Errorf("failed to list SPI devices: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, path := range paths {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}
		port, ok := PortName(path)
		if !ok {
			continue
		}
		device := detection.DeviceInfo{
			Transport:  "mcp2515",
			Path:       port,
			Name:       "SPI port " + port,
			Confidence: detection.Low,
			Metadata:   map[string]string{"device": path},
		}
		if opts.Mode == detection.Safe {
			found, err := d.probe(port)
			if err != nil || !found {
				continue
			}
			device.Confidence = detection.High
			device.Name = "MCP2515 on " + port
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// PortName maps /dev/spidevB.C to the periph port name SPIB.C
func PortName(path string) (string, bool) {
	rest, ok := strings.CutPrefix(filepath.Base(path), "spidev")
	if !ok || rest == "" {
		return "", false
	}
	bus, cs, ok := strings.Cut(rest, ".")
	if !ok || bus == "" || cs == "" {
		return "", false
	}
	return "SPI" + bus + "." + cs, true
}

func probePort(name string) (bool, error) {
	if _, err := host.Init(); err != nil {
		return false, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return false, fmt.Errorf("failed to open SPI port %s: %w", name, err)
	}
	defer func() { _ = port.Close() }()

	conn, err := port.Connect(transport.DefaultSPIFrequency, spi.Mode0, 8)
	if err != nil {
		return false, fmt.Errorf("failed to configure SPI port %s: %w", name, err)
	}
	return transport.Probe(conn)
}
