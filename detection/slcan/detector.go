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

// Package slcan detects serial line CAN adapters
package slcan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-mbnet/detection"
	transport "github.com/ZaparooProject/go-mbnet/transport/slcan"
)

// knownAdapters maps VID:PID to the adapter family speaking slcan
var knownAdapters = map[string]string{
	"1D50:606F": "CANable",
	"16D0:117E": "CANable (legacy)",
	"04D8:000A": "USBtin",
	"0403:FFA8": "Lawicel CANUSB",
	"0483:5740": "STM32 virtual COM (slcan firmware)",
}

// usbSerialBridges are generic USB-UART chips that are often found on
// slcan adapters but also on plenty of other hardware
var usbSerialBridges = map[string]string{
	"0403:6001": "FTDI FT232R",
	"0403:6015": "FTDI FT231X",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
}

type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	probe     func(ctx context.Context, path string) (string, error)
}

// New creates a new slcan detector
func New() detection.Detector {
	return &detector{
		listPorts: enumerator.GetDetailedPortsList,
		probe:     probePort,
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "slcan"
}

// Detect lists serial ports and ranks them by USB identity. In Safe mode
// each candidate is asked for its slcan version.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		device, ok := describe(port)
		if !ok {
			continue
		}
		if detection.IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if opts.Mode == detection.Safe && device.Confidence < detection.High {
			probeCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
			version, err := d.probe(probeCtx, device.Path)
			cancel()
			if err == nil {
				device.Confidence = detection.High
				device.Metadata["version"] = version
			}
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func describe(port *enumerator.PortDetails) (detection.DeviceInfo, bool) {
	if port == nil || port.Name == "" {
		return detection.DeviceInfo{}, false
	}
	// bluetooth and built-in UARTs are never CAN adapters
	lower := strings.ToLower(port.Name)
	if strings.Contains(lower, "bluetooth") || strings.HasPrefix(lower, "/dev/ttys") {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  "slcan",
		Path:       port.Name,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}
	if !port.IsUSB {
		return device, true
	}

	var vidpid string
	if id, err := detection.ParseUSBID(port.VID, port.PID); err == nil {
		vidpid = id.String()
		device.Metadata["vidpid"] = vidpid
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if port.Product != "" {
		device.Name = port.Product
	}

	if name, ok := knownAdapters[vidpid]; ok {
		device.Name = name
		device.Confidence = detection.High
	} else if name, ok := usbSerialBridges[vidpid]; ok {
		device.Metadata["bridge"] = name
		device.Confidence = detection.Medium
	}
	return device, true
}

func probePort(ctx context.Context, path string) (string, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: transport.DefaultBaudRate})
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = port.Close() }()
	return transport.Probe(ctx, port)
}
