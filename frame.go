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

package mbnet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mbnet/internal/frame"
)

// Frame is a classical CAN 2.0B frame as handed to and from a Transport.
// MBNet only ever sends extended data frames, but transports may deliver
// anything the bus carries.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool
	RTR      bool
	Len      uint8 // 0..8
	Data     [8]byte
}

// NewFrame builds the extended data frame carrying id and the first dlc
// bytes of msg.
func NewFrame(id FrameID, msg Message, dlc uint8) (Frame, error) {
	if dlc > frame.MaxDataLength {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLength, dlc)
	}
	raw, err := id.Encode()
	if err != nil {
		return Frame{}, err
	}
	f := Frame{ID: raw, Extended: true, Len: dlc}
	copy(f.Data[:dlc], msg[:dlc])
	return f, nil
}

// Validate returns an error if the frame is not valid
func (f Frame) Validate() error {
	if f.Len > frame.MaxDataLength {
		return ErrInvalidLength
	}
	if f.Extended {
		if f.ID > frame.MaxExtID {
			return ErrReservedBits
		}
	} else if f.ID > frame.MaxStdID {
		return ErrFieldRange
	}
	return nil
}

// FrameID decodes the MBNet header of an extended data frame
func (f Frame) FrameID() (FrameID, error) {
	if !f.Extended || f.RTR {
		return FrameID{}, ErrInvalidFrame
	}
	return DecodeFrameID(f.ID)
}

// Message returns the payload as a Message; bytes beyond Len are zero
func (f Frame) Message() Message {
	var m Message
	copy(m[:], f.Data[:min(int(f.Len), frame.MaxDataLength)])
	return m
}

// MarshalBinary encodes the frame in the Linux SocketCAN can_frame layout
// (16 bytes, little-endian id word with EFF/RTR flags, dlc at offset 4,
// data at offset 8).
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= frame.EffFlag
	}
	if f.RTR {
		id |= frame.RtrFlag
	}
	buf := make([]byte, frame.BinaryFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the can_frame layout
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frame.BinaryFrameSize {
		return fmt.Errorf("need %d bytes, got %d: %w", frame.BinaryFrameSize, len(data), ErrInvalidLength)
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&frame.EffFlag != 0
	f.RTR = id&frame.RtrFlag != 0
	if f.Extended {
		f.ID = id & frame.MaxExtID
	} else {
		f.ID = id & frame.MaxStdID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// String renders the frame candump style, e.g. "0001A20A [2] DE AD"
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	for i := 0; i < int(f.Len) && i < frame.MaxDataLength; i++ {
		fmt.Fprintf(&b, " %02X", f.Data[i])
	}
	return b.String()
}
