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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSBID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vid     string
		pid     string
		want    USBID
		wantErr bool
	}{
		{name: "candlelight", vid: "1d50", pid: "606f", want: USBID{VID: 0x1d50, PID: 0x606f}},
		{name: "upper case", vid: "0403", pid: "6001", want: USBID{VID: 0x0403, PID: 0x6001}},
		{name: "short", vid: "4d8", pid: "a", want: USBID{VID: 0x04d8, PID: 0x000a}},
		{name: "empty vid", vid: "", pid: "6001", wantErr: true},
		{name: "not hex", vid: "0403", pid: "xyz", wantErr: true},
		{name: "too wide", vid: "10403", pid: "6001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseUSBID(tt.vid, tt.pid)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVIDPID(t *testing.T) {
	t.Parallel()

	id, err := ParseVIDPID(" 1d50:606F ")
	require.NoError(t, err)
	assert.Equal(t, "1D50:606F", id.String())

	for _, bad := range []string{"", "1d50", "1d50:", ":606f", "/dev/ttyACM0"} {
		_, err := ParseVIDPID(bad)
		require.Error(t, err, bad)
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	list := []string{"1d50:606f", " 0403:6001 ", "garbage"}
	assert.True(t, IsBlocked("1D50:606F", list))
	assert.True(t, IsBlocked("0403:6001", list))
	assert.False(t, IsBlocked("0403:6015", list))
	assert.False(t, IsBlocked("1D50:606F", nil))
	assert.False(t, IsBlocked("garbage", list), "unparsable ids never match")

	for _, entry := range DefaultBlocklist() {
		_, err := ParseVIDPID(entry)
		require.NoError(t, err, entry)
	}
	assert.True(t, IsBlocked("2341:0043", DefaultBlocklist()))
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		ignore  []string
		ignored bool
	}{
		{name: "no ignore list", path: "/dev/ttyACM0", ignore: nil},
		{name: "empty path", path: "", ignore: []string{"/dev/ttyACM0"}},
		{name: "slcan adapter", path: "/dev/ttyACM0", ignore: []string{"/dev/ttyACM0"}, ignored: true},
		{name: "other adapter", path: "/dev/ttyACM1", ignore: []string{"/dev/ttyACM0"}},
		{name: "spi device", path: "/dev/spidev0.1", ignore: []string{"/dev/spidev0.0", "/dev/spidev0.1"}, ignored: true},
		{name: "unclean path", path: "/dev/../dev/spidev0.0", ignore: []string{"/dev/spidev0.0"}, ignored: true},
		{name: "device nodes are case sensitive", path: "/dev/ttyACM0", ignore: []string{"/DEV/TTYACM0"}},
		{name: "socketcan interface", path: "can0", ignore: []string{"vcan0", "can0"}, ignored: true},
		{name: "interface prefix is not a match", path: "can1", ignore: []string{"can"}},
		{name: "com port any case", path: "com3", ignore: []string{"COM3"}, ignored: true},
		{name: "blank entries skipped", path: "can0", ignore: []string{"", "can0"}, ignored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ignored, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}
