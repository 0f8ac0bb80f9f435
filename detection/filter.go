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

package detection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// USBID is the vendor and product id of a USB serial adapter
type USBID struct {
	VID uint16
	PID uint16
}

// String formats id as VVVV:PPPP, the form used by blocklists and the
// "vidpid" metadata of detected devices
func (id USBID) String() string {
	return fmt.Sprintf("%04X:%04X", id.VID, id.PID)
}

// ParseUSBID parses the hexadecimal VID and PID strings reported by the
// serial port enumerator, e.g. "1d50" and "606f"
func ParseUSBID(vid, pid string) (USBID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(vid), 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid usb vendor id %q: %w", vid, err)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(pid), 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid usb product id %q: %w", pid, err)
	}
	return USBID{VID: uint16(v), PID: uint16(p)}, nil
}

// ParseVIDPID parses a "vvvv:pppp" blocklist entry
func ParseVIDPID(s string) (USBID, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return USBID{}, fmt.Errorf("usb id %q is not in vid:pid form", s)
	}
	return ParseUSBID(vid, pid)
}

// DefaultBlocklist returns USB serial devices that enumerate like CAN
// adapters but must never be opened by detection
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, resets when the port opens
		"2341:0042", // Arduino Mega 2560, same
		"1366:0105", // SEGGER J-Link VCOM
	}
}

// IsBlocked reports whether vidpid appears in blocklist. Entries that do
// not parse are skipped.
func IsBlocked(vidpid string, blocklist []string) bool {
	id, err := ParseVIDPID(vidpid)
	if err != nil {
		return false
	}
	for _, entry := range blocklist {
		if blocked, err := ParseVIDPID(entry); err == nil && blocked == id {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath matches an entry of
// ignorePaths. Device nodes such as /dev/ttyACM0 or /dev/spidev0.0 match
// after cleaning; interface names like can0 and COM ports match without
// regard to case.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	for _, ignore := range ignorePaths {
		if ignore != "" && samePath(devicePath, ignore) {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	if filepath.IsAbs(a) || filepath.IsAbs(b) {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return strings.EqualFold(a, b)
}
