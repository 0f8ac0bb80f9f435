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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// parseUint accepts decimal or 0x prefixed hex
func parseUint(arg string, bits int) (uint64, error) {
	return strconv.ParseUint(arg, 0, bits)
}

// parseHexData parses "DEADBEEF", "de ad be ef" or "de:ad:be:ef"
func parseHexData(args []string) ([]byte, error) {
	joined := strings.NewReplacer(":", "", " ", "", "0x", "", "0X", "").Replace(strings.Join(args, ""))
	data, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// hexdump renders data as space separated upper case bytes
func hexdump(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
