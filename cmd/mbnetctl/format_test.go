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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mbnet"
)

func TestGuessTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want mbnet.TransportType
	}{
		{path: "can0", want: mbnet.TransportSocketCAN},
		{path: "vcan1", want: mbnet.TransportSocketCAN},
		{path: "/dev/spidev0.0", want: mbnet.TransportMCP2515},
		{path: "SPI1.0", want: mbnet.TransportMCP2515},
		{path: "/dev/ttyACM0", want: mbnet.TransportSLCAN},
		{path: "COM3", want: mbnet.TransportSLCAN},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, string(tt.want), guessTransport(tt.path))
		})
	}
}

func TestParseNodeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg     string
		want    mbnet.NodeID
		wantErr bool
	}{
		{arg: "33", want: 33},
		{arg: "0x21", want: 0x21},
		{arg: "127", want: 127},
		{arg: "128", wantErr: true},
		{arg: "256", wantErr: true},
		{arg: "core", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			t.Parallel()
			got, err := parseNodeID(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHexData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []byte
		wantErr bool
	}{
		{name: "packed", args: []string{"DEADBEEF"}, want: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "separate args", args: []string{"de", "ad"}, want: []byte{0xDE, 0xAD}},
		{name: "colons", args: []string{"01:02:03"}, want: []byte{1, 2, 3}},
		{name: "prefixed", args: []string{"0x10", "0x20"}, want: []byte{0x10, 0x20}},
		{name: "odd length", args: []string{"ABC"}, wantErr: true},
		{name: "not hex", args: []string{"zz"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseHexData(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexdump(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "DE AD 01", hexdump([]byte{0xDE, 0xAD, 0x01}))
	assert.Empty(t, hexdump(nil))
}
