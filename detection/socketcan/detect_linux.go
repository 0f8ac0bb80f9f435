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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ZaparooProject/go-mbnet/detection"
)

// IFF_UP in /sys/class/net/<if>/flags
const ifaceUp = 0x1

func detectInterfaces(ctx context.Context, sysfsRoot string, opts *detection.Options) ([]detection.DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, entry := range entries {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		name := entry.Name()
		if detection.IsPathIgnored(name, opts.IgnorePaths) {
			continue
		}
		dir := filepath.Join(sysfsRoot, name)

		kind, err := readHex(filepath.Join(dir, "type"))
		if err != nil || kind != unix.ARPHRD_CAN {
			continue
		}

		device := detection.DeviceInfo{
			Transport:  "socketcan",
			Path:       name,
			Name:       "SocketCAN interface " + name,
			Confidence: detection.Medium,
			Metadata:   map[string]string{"state": "down"},
		}
		if flags, err := readHex(filepath.Join(dir, "flags")); err == nil && flags&ifaceUp != 0 {
			device.Confidence = detection.High
			device.Metadata["state"] = "up"
		}
		if strings.HasPrefix(name, "vcan") {
			device.Metadata["virtual"] = "true"
			device.Confidence = detection.Low
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

// readHex parses a sysfs attribute such as "280" or "0x1003"
func readHex(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return int(v), nil
}
