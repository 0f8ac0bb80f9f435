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

// Package slcan provides the serial line CAN transport for MBNet nodes.
// It drives Lawicel compatible adapters (CANable, USBtin, CANUSB) over
// any serial port.
package slcan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-mbnet"
	itransport "github.com/ZaparooProject/go-mbnet/internal/transport"
)

const (
	// DefaultBaudRate is the serial speed used by most USB adapters
	DefaultBaudRate = 115200
	// DefaultBitrate is the CAN bitrate of an MBNet bus
	DefaultBitrate = 500000
	// DefaultQueueDepth mirrors the hardware receive FIFO of the original
	// controllers
	DefaultQueueDepth = 3
)

// Config holds the adapter settings
type Config struct {
	BaudRate   int
	Bitrate    int
	QueueDepth int
}

// DefaultConfig returns the configuration for a 500 kbit/s bus
func DefaultConfig() Config {
	return Config{
		BaudRate:   DefaultBaudRate,
		Bitrate:    DefaultBitrate,
		QueueDepth: DefaultQueueDepth,
	}
}

// Transport implements mbnet.Transport over an slcan adapter. A reader
// goroutine decodes incoming lines and sorts frames into the two
// receive queues with software acceptance filters.
type Transport struct {
	port     io.ReadWriteCloser
	readErr  error
	queues   [2]*itransport.FIFO[mbnet.Frame]
	filters  [2]*mbnet.AcceptanceFilter
	done     chan struct{}
	portName string
	writeMu  sync.Mutex
	mu       sync.Mutex
	errors   atomic.Uint64
	closed   bool
}

// New opens portName and brings the adapter onto the bus
func New(portName string, config Config) (*Transport, error) {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName, config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort runs the adapter setup sequence on an already open port
func NewWithPort(port io.ReadWriteCloser, portName string, config Config) (*Transport, error) {
	if config.Bitrate == 0 {
		config.Bitrate = DefaultBitrate
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}
	bitrate, err := BitrateCommand(config.Bitrate)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		port:     port,
		portName: portName,
		done:     make(chan struct{}),
		queues: [2]*itransport.FIFO[mbnet.Frame]{
			itransport.NewFIFO[mbnet.Frame](config.QueueDepth),
			itransport.NewFIFO[mbnet.Frame](config.QueueDepth),
		},
	}

	// close first in case the adapter was left open, then configure
	for _, cmd := range []string{"C\r", bitrate, "O\r"} {
		if err := t.write([]byte(cmd)); err != nil {
			return nil, fmt.Errorf("slcan setup %q: %w", cmd[:len(cmd)-1], err)
		}
	}

	go t.readLoop()
	return t, nil
}

// Send writes f to the adapter. The serial line has no mailbox limit, so
// Send never reports ErrMailboxBusy.
func (t *Transport) Send(ctx context.Context, f mbnet.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.IsConnected() {
		return mbnet.ErrTransportClosed
	}
	line, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return t.write(line)
}

func (t *Transport) write(b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.port.Write(b); err != nil {
		return mbnet.NewTransportError("send", t.portName,
			fmt.Errorf("%w: %w", mbnet.ErrTransportWrite, err), mbnet.ErrorTypeTransient)
	}
	return nil
}

// TryReceive pops the oldest frame of q. Once the reader has failed the
// queued frames are still handed out before the failure is reported.
func (t *Transport) TryReceive(q mbnet.Queue) (mbnet.Frame, bool, error) {
	if err := mbnet.CheckQueue(q); err != nil {
		return mbnet.Frame{}, false, err
	}
	if f, ok := t.queues[q].Pop(); ok {
		return f, true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return mbnet.Frame{}, false, mbnet.ErrTransportClosed
	case t.readErr != nil:
		return mbnet.Frame{}, false, mbnet.NewTransportError("receive", t.portName, t.readErr, mbnet.ErrorTypePermanent)
	}
	return mbnet.Frame{}, false, nil
}

// SetFilter installs the software acceptance filter of q
func (t *Transport) SetFilter(q mbnet.Queue, filter mbnet.AcceptanceFilter) error {
	if err := mbnet.CheckQueue(q); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filters[q] = &filter
	return nil
}

// Close takes the adapter off the bus and closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.write([]byte("C\r"))
	err := t.port.Close()

	select {
	case <-t.done:
	case <-time.After(time.Second):
	}
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true until Close or a reader failure
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.readErr == nil
}

// Type returns mbnet.TransportSLCAN
func (*Transport) Type() mbnet.TransportType {
	return mbnet.TransportSLCAN
}

// Overruns returns how many frames q dropped because it was full
func (t *Transport) Overruns(q mbnet.Queue) uint64 {
	if mbnet.CheckQueue(q) != nil {
		return 0
	}
	return t.queues[q].Overruns()
}

// AdapterErrors returns how many commands the adapter rejected
func (t *Transport) AdapterErrors() uint64 {
	return t.errors.Load()
}

func (t *Transport) readLoop() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.port)
	scanner.Split(splitLines)
	for scanner.Scan() {
		t.handleLine(scanner.Bytes())
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	t.mu.Lock()
	if !t.closed {
		t.readErr = fmt.Errorf("%w: %w", mbnet.ErrTransportRead, err)
	}
	t.mu.Unlock()
}

func (t *Transport) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	if line[len(line)-1] == bell {
		t.errors.Add(1)
		return
	}
	switch line[0] {
	case 'z', 'Z':
		// transmit confirmations
		return
	}

	f, err := ParseFrame(line)
	if err != nil {
		return
	}

	t.mu.Lock()
	filters := t.filters
	t.mu.Unlock()
	for q, filter := range filters {
		if filter != nil && filter.Match(f) {
			t.queues[q].Push(f)
			return
		}
	}
}

// String returns the port name
func (t *Transport) String() string {
	return t.portName
}

var _ mbnet.Transport = (*Transport)(nil)

// errNotSLCAN marks a probe that got no sensible answer
var errNotSLCAN = errors.New("no slcan version response")

// Probe asks the adapter at port for its hardware version ("V")
// without opening the bus. It returns the raw version string.
//
// The reply is read in a goroutine. When ctx ends first and port is an
// io.Closer, Probe closes port so that goroutine's pending read returns;
// the port is unusable afterwards.
func Probe(ctx context.Context, port io.ReadWriter) (string, error) {
	if _, err := port.Write([]byte("V\r")); err != nil {
		return "", fmt.Errorf("write version query: %w", err)
	}

	type result struct {
		err  error
		line string
	}
	ch := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(port)
		scanner.Split(splitLines)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) > 1 && line[0] == 'V' {
				ch <- result{line: line[1:]}
				return
			}
		}
		ch <- result{err: errNotSLCAN}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		if c, ok := port.(io.Closer); ok {
			_ = c.Close()
		}
		return "", ctx.Err()
	}
}
