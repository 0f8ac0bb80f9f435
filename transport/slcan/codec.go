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
	"errors"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/go-mbnet"
)

// Line terminators of the ASCII protocol
const (
	cr   = '\r'
	bell = '\a'
)

// ErrMalformedLine is returned for lines that do not decode to a frame
var ErrMalformedLine = errors.New("malformed slcan line")

var bitrateCodes = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// BitrateCommand returns the "Sn" setup command for a standard bitrate
func BitrateCommand(bitrate int) (string, error) {
	code, ok := bitrateCodes[bitrate]
	if !ok {
		return "", fmt.Errorf("unsupported slcan bitrate %d", bitrate)
	}
	return "S" + string(code) + "\r", nil
}

// EncodeFrame renders f as one terminated slcan line:
// "Tiiiiiiiil<data>\r" for extended and "tiiil<data>\r" for standard
// frames, with R/r for remote frames.
func EncodeFrame(f mbnet.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var cmd byte
	var id string
	switch {
	case f.Extended && f.RTR:
		cmd, id = 'R', fmt.Sprintf("%08X", f.ID)
	case f.Extended:
		cmd, id = 'T', fmt.Sprintf("%08X", f.ID)
	case f.RTR:
		cmd, id = 'r', fmt.Sprintf("%03X", f.ID)
	default:
		cmd, id = 't', fmt.Sprintf("%03X", f.ID)
	}

	line := make([]byte, 0, 1+len(id)+1+2*int(f.Len)+1)
	line = append(line, cmd)
	line = append(line, id...)
	line = append(line, '0'+f.Len)
	if !f.RTR {
		for i := range int(f.Len) {
			line = fmt.Appendf(line, "%02X", f.Data[i])
		}
	}
	return append(line, cr), nil
}

// ParseFrame decodes one unterminated frame line
func ParseFrame(line []byte) (mbnet.Frame, error) {
	if len(line) == 0 {
		return mbnet.Frame{}, ErrMalformedLine
	}

	var f mbnet.Frame
	idLen := 3
	switch line[0] {
	case 'T':
		f.Extended, idLen = true, 8
	case 'R':
		f.Extended, f.RTR, idLen = true, true, 8
	case 't':
	case 'r':
		f.RTR = true
	default:
		return mbnet.Frame{}, fmt.Errorf("%w: unknown command %q", ErrMalformedLine, line[0])
	}

	if len(line) < 1+idLen+1 {
		return mbnet.Frame{}, fmt.Errorf("%w: short line %q", ErrMalformedLine, line)
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return mbnet.Frame{}, fmt.Errorf("%w: identifier: %w", ErrMalformedLine, err)
	}
	f.ID = uint32(id)

	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return mbnet.Frame{}, fmt.Errorf("%w: length %q", ErrMalformedLine, dlc)
	}
	f.Len = dlc - '0'

	payload := line[2+idLen:]
	if !f.RTR {
		if len(payload) < 2*int(f.Len) {
			return mbnet.Frame{}, fmt.Errorf("%w: payload shorter than length %d", ErrMalformedLine, f.Len)
		}
		for i := range int(f.Len) {
			b, err := strconv.ParseUint(string(payload[2*i:2*i+2]), 16, 8)
			if err != nil {
				return mbnet.Frame{}, fmt.Errorf("%w: data byte %d: %w", ErrMalformedLine, i, err)
			}
			f.Data[i] = byte(b)
		}
	}

	if err := f.Validate(); err != nil {
		return mbnet.Frame{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	return f, nil
}

// splitLines is a bufio.SplitFunc yielding slcan responses. Every CR or
// BELL terminates a token; the BELL is kept so callers can count errors.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		switch b {
		case cr:
			return i + 1, data[:i], nil
		case bell:
			return i + 1, data[:i+1], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
