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

package main

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/config"
	"github.com/ZaparooProject/go-mbnet/detection"
	mcpdetect "github.com/ZaparooProject/go-mbnet/detection/mcp2515"
	// Import detectors to register them
	_ "github.com/ZaparooProject/go-mbnet/detection/slcan"
	_ "github.com/ZaparooProject/go-mbnet/detection/socketcan"
	"github.com/ZaparooProject/go-mbnet/transport/mcp2515"
	"github.com/ZaparooProject/go-mbnet/transport/slcan"
	"github.com/ZaparooProject/go-mbnet/transport/socketcan"
)

// guessTransport picks a transport type from the shape of a device path
func guessTransport(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "spi"):
		return string(mbnet.TransportMCP2515)
	case strings.HasPrefix(lower, "can"), strings.HasPrefix(lower, "vcan"), strings.HasPrefix(lower, "slcan"):
		return string(mbnet.TransportSocketCAN)
	default:
		return string(mbnet.TransportSLCAN)
	}
}

// transportFactory returns the factory opening explicit device paths with
// the settings of ts
func transportFactory(ts *config.TransportSchema) mbnet.TransportFactory {
	return func(path string) (mbnet.Transport, error) {
		kind := ts.Type
		if kind == "" {
			kind = guessTransport(path)
		}
		return openTransport(kind, path, ts)
	}
}

// transportFromDevice opens a detected device
func transportFromDevice(ts *config.TransportSchema) mbnet.TransportFromDeviceFactory {
	return func(device detection.DeviceInfo) (mbnet.Transport, error) {
		return openTransport(device.Transport, device.Path, ts)
	}
}

func openTransport(kind, path string, ts *config.TransportSchema) (mbnet.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	switch mbnet.TransportType(strings.ToLower(kind)) {
	case mbnet.TransportSocketCAN:
		t, err := socketcan.New(path, socketcan.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create SocketCAN transport: %w", err)
		}
		return t, nil

	case mbnet.TransportSLCAN:
		t, err := slcan.New(path, slcan.Config{
			BaudRate:   ts.BaudRate,
			Bitrate:    ts.Bitrate,
			QueueDepth: ts.QueueDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create slcan transport: %w", err)
		}
		return t, nil

	case mbnet.TransportMCP2515:
		if port, ok := mcpdetect.PortName(path); ok {
			path = port
		}
		cfg := mcp2515.DefaultConfig()
		if ts.SPIFrequency > 0 {
			cfg.SPIFrequency = physic.Frequency(ts.SPIFrequency) * physic.Hertz
		}
		if ts.Oscillator > 0 {
			cfg.Oscillator = ts.Oscillator
		}
		if ts.Bitrate > 0 {
			cfg.Bitrate = ts.Bitrate
		}
		if ts.QueueDepth > 0 {
			cfg.QueueDepth = ts.QueueDepth
		}
		t, err := mcp2515.New(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP2515 transport: %w", err)
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}
