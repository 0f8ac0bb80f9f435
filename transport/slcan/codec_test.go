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

package slcan

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mbnet"
)

func TestEncodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		want  string
		frame mbnet.Frame
	}{
		{
			name:  "extended data",
			frame: mbnet.Frame{ID: 0x0001A20A, Extended: true, Len: 2, Data: [8]byte{0xDE, 0xAD}},
			want:  "T0001A20A2DEAD\r",
		},
		{
			name:  "extended empty",
			frame: mbnet.Frame{ID: 0x1FFFFFFF, Extended: true},
			want:  "T1FFFFFFF0\r",
		},
		{
			name:  "standard data",
			frame: mbnet.Frame{ID: 0x123, Len: 1, Data: [8]byte{0x01}},
			want:  "t123101\r",
		},
		{
			name:  "extended remote",
			frame: mbnet.Frame{ID: 0x10, Extended: true, RTR: true, Len: 4},
			want:  "R000000104\r",
		},
		{
			name:  "standard remote",
			frame: mbnet.Frame{ID: 0x7FF, RTR: true},
			want:  "r7FF0\r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := EncodeFrame(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeFrame_Invalid(t *testing.T) {
	t.Parallel()

	_, err := EncodeFrame(mbnet.Frame{ID: 0x20000000, Extended: true})
	require.ErrorIs(t, err, mbnet.ErrReservedBits)

	_, err = EncodeFrame(mbnet.Frame{ID: 0x1, Extended: true, Len: 9})
	require.ErrorIs(t, err, mbnet.ErrInvalidLength)
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	f, err := ParseFrame([]byte("T0001A20A3DEADBE"))
	require.NoError(t, err)
	assert.Equal(t, mbnet.Frame{ID: 0x0001A20A, Extended: true, Len: 3, Data: [8]byte{0xDE, 0xAD, 0xBE}}, f)

	f, err = ParseFrame([]byte("t7FF0"))
	require.NoError(t, err)
	assert.Equal(t, mbnet.Frame{ID: 0x7FF}, f)

	f, err = ParseFrame([]byte("R000000108"))
	require.NoError(t, err)
	assert.True(t, f.RTR)
	assert.True(t, f.Extended)
	assert.Equal(t, uint8(8), f.Len)

	// trailing timestamps are ignored
	f, err = ParseFrame([]byte("t1231AA1234"))
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAA), f.Data[0])
}

func TestParseFrame_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{name: "empty", line: ""},
		{name: "unknown command", line: "X123"},
		{name: "short extended id", line: "T0001"},
		{name: "bad hex id", line: "T0001G20A0"},
		{name: "length above eight", line: "t1239"},
		{name: "length not a digit", line: "t123A"},
		{name: "payload too short", line: "T0001A20A2DE"},
		{name: "bad hex payload", line: "t1231ZZ"},
		{name: "standard id out of range", line: "t8000"},
		{name: "extended id out of range", line: "T200000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseFrame([]byte(tt.line))
			require.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestBitrateCommand(t *testing.T) {
	t.Parallel()

	cmd, err := BitrateCommand(500000)
	require.NoError(t, err)
	assert.Equal(t, "S6\r", cmd)

	cmd, err = BitrateCommand(1000000)
	require.NoError(t, err)
	assert.Equal(t, "S8\r", cmd)

	_, err = BitrateCommand(333333)
	require.Error(t, err)
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	scanner := bufio.NewScanner(strings.NewReader("z\rT000000010\r\a\rV1013\rtail"))
	scanner.Split(splitLines)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"z", "T000000010", "\a", "", "V1013", "tail"}, tokens)
}
