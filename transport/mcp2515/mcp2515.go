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

// Package mcp2515 provides an MBNet transport for the Microchip MCP2515
// stand-alone CAN controller attached over SPI.
//
// The controller's two receive buffers map onto the two node queues:
// RXB0 (filters RXF0-1) takes requests and RXB1 (filters RXF2-5) takes
// acknowledges. Frames are drained into bounded software FIFOs on every
// poll. All three transmit buffers are used as mailboxes.
package mcp2515

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/internal/frame"
	itransport "github.com/ZaparooProject/go-mbnet/internal/transport"
)

const (
	// DefaultSPIFrequency is well below the 10 MHz limit of the chip
	DefaultSPIFrequency = 8 * physic.MegaHertz
	// DefaultOscillator is the crystal found on most breakout boards
	DefaultOscillator = 16000000
	// DefaultBitrate is the CAN bitrate of an MBNet bus
	DefaultBitrate = 500000
	// DefaultQueueDepth bounds each software receive queue
	DefaultQueueDepth = 3
)

// ErrModeChange is returned when the controller does not enter a
// requested operating mode
var ErrModeChange = errors.New("mcp2515 did not change operating mode")

// Conn is the SPI connection to the controller. periph's spi.Conn
// satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Config holds the controller settings
type Config struct {
	SPIFrequency physic.Frequency
	Oscillator   int
	Bitrate      int
	QueueDepth   int
	// ModeRetries bounds how often the operating mode is polled after a
	// mode request or reset
	ModeRetries int
	ModeDelay   time.Duration
}

// DefaultConfig returns the configuration for a 16 MHz board on a
// 500 kbit/s bus
func DefaultConfig() Config {
	return Config{
		SPIFrequency: DefaultSPIFrequency,
		Oscillator:   DefaultOscillator,
		Bitrate:      DefaultBitrate,
		QueueDepth:   DefaultQueueDepth,
		ModeRetries:  10,
		ModeDelay:    time.Millisecond,
	}
}

// Transport implements mbnet.Transport on an MCP2515
type Transport struct {
	conn   Conn
	closer io.Closer
	queues [2]*itransport.FIFO[mbnet.Frame]
	name   string
	config Config
	mu     sync.Mutex
	closed bool
	tx, rx []byte
}

// New opens the SPI port (for example "SPI0.0") and initializes the
// controller
func New(portName string, config Config) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	freq := config.SPIFrequency
	if freq == 0 {
		freq = DefaultSPIFrequency
	}
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to configure SPI port %s: %w", portName, err)
	}

	t, err := NewWithConn(conn, port, portName, config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithConn resets the controller behind conn, programs the bit timing
// and enters normal mode. closer may be nil.
func NewWithConn(conn Conn, closer io.Closer, name string, config Config) (*Transport, error) {
	defaults := DefaultConfig()
	if config.Oscillator == 0 {
		config.Oscillator = defaults.Oscillator
	}
	if config.Bitrate == 0 {
		config.Bitrate = defaults.Bitrate
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = defaults.QueueDepth
	}
	if config.ModeRetries <= 0 {
		config.ModeRetries = defaults.ModeRetries
	}
	bt, err := lookupTiming(config.Oscillator, config.Bitrate)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		conn:   conn,
		closer: closer,
		name:   name,
		config: config,
		tx:     make([]byte, 2+rxBufferLen),
		rx:     make([]byte, 2+rxBufferLen),
		queues: [2]*itransport.FIFO[mbnet.Frame]{
			itransport.NewFIFO[mbnet.Frame](config.QueueDepth),
			itransport.NewFIFO[mbnet.Frame](config.QueueDepth),
		},
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.reset(); err != nil {
		return nil, err
	}
	if err := t.write(regCNF3, bt[2], bt[1], bt[0]); err != nil {
		return nil, err
	}
	// no interrupts, polling only
	if err := t.write(regCANINTE, 0x00); err != nil {
		return nil, err
	}
	if err := t.write(regRXB0CTRL, rxbCtrlNoRollov); err != nil {
		return nil, err
	}
	if err := t.write(regRXB1CTRL, rxbCtrlNoRollov); err != nil {
		return nil, err
	}
	// accept nothing until the node installs its filters
	closedFilter := mbnet.AcceptanceFilter{ID: frame.MaxExtID, Mask: frame.MaxExtID}
	if err := t.programFilter(regRXM0, requestFilters, closedFilter); err != nil {
		return nil, err
	}
	if err := t.programFilter(regRXM1, ackFilters, closedFilter); err != nil {
		return nil, err
	}
	if err := t.setMode(modeNormal); err != nil {
		return nil, err
	}
	return t, nil
}

// Send loads f into the first idle transmit buffer and requests
// transmission. It returns ErrMailboxBusy when all three are pending.
func (t *Transport) Send(ctx context.Context, f mbnet.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mbnet.ErrTransportClosed
	}

	status, err := t.readStatus()
	if err != nil {
		return err
	}
	for slot, pending := range txreqStatus {
		if status&pending != 0 {
			continue
		}
		if err := t.cmd(append([]byte{instLoadTX | byte(2*slot)}, encodeTX(f)...)...); err != nil {
			return err
		}
		return t.cmd(instRTS | 1<<slot)
	}
	return mbnet.NewMailboxBusyError("send", t.name)
}

// TryReceive moves pending receive buffers into the software queues and
// pops the oldest frame of q
func (t *Transport) TryReceive(q mbnet.Queue) (mbnet.Frame, bool, error) {
	if err := mbnet.CheckQueue(q); err != nil {
		return mbnet.Frame{}, false, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return mbnet.Frame{}, false, mbnet.ErrTransportClosed
	}
	err := t.drain()
	t.mu.Unlock()

	if f, ok := t.queues[q].Pop(); ok {
		return f, true, nil
	}
	return mbnet.Frame{}, false, err
}

func (t *Transport) drain() error {
	status, err := t.readStatus()
	if err != nil {
		return err
	}
	for q, buf := range []struct {
		flag byte
		inst byte
	}{
		{statusRX0IF, instReadRXB0},
		{statusRX1IF, instReadRXB1},
	} {
		if status&buf.flag == 0 {
			continue
		}
		raw, err := t.transfer(rxBufferLen, buf.inst)
		if err != nil {
			return err
		}
		f, err := decodeRX(raw)
		if err != nil {
			continue
		}
		t.queues[q].Push(f)
	}
	return nil
}

// SetFilter programs the mask and every filter of the receive buffer
// behind q. The controller is taken to configuration mode meanwhile.
func (t *Transport) SetFilter(q mbnet.Queue, filter mbnet.AcceptanceFilter) error {
	if err := mbnet.CheckQueue(q); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mbnet.ErrTransportClosed
	}

	if err := t.setMode(modeConfig); err != nil {
		return err
	}
	var err error
	if q == mbnet.QueueRequest {
		err = t.programFilter(regRXM0, requestFilters, filter)
	} else {
		err = t.programFilter(regRXM1, ackFilters, filter)
	}
	if err != nil {
		return err
	}
	return t.setMode(modeNormal)
}

func (t *Transport) programFilter(mask byte, filters []byte, filter mbnet.AcceptanceFilter) error {
	m := encodeID(filter.Mask, true)
	if err := t.write(mask, m[:]...); err != nil {
		return err
	}
	f := encodeID(filter.ID, true)
	for _, reg := range filters {
		if err := t.write(reg, f[:]...); err != nil {
			return err
		}
	}
	return nil
}

// Close puts the controller into configuration mode, which takes it off
// the bus, and releases the SPI port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	err := t.setMode(modeConfig)
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	return err
}

// IsConnected returns true until Close
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns mbnet.TransportMCP2515
func (*Transport) Type() mbnet.TransportType {
	return mbnet.TransportMCP2515
}

// Overruns returns how many frames q dropped because it was full
func (t *Transport) Overruns(q mbnet.Queue) uint64 {
	if mbnet.CheckQueue(q) != nil {
		return 0
	}
	return t.queues[q].Overruns()
}

// String returns the SPI port name
func (t *Transport) String() string {
	return t.name
}

// reset issues the RESET instruction and waits for configuration mode
func (t *Transport) reset() error {
	if err := t.cmd(instReset); err != nil {
		return err
	}
	return t.waitMode(modeConfig)
}

// setMode requests an operating mode and waits until CANSTAT reports it
func (t *Transport) setMode(mode byte) error {
	if err := t.cmd(instBitModify, regCANCTRL, modeMask, mode); err != nil {
		return err
	}
	return t.waitMode(mode)
}

func (t *Transport) waitMode(mode byte) error {
	_, err := itransport.WithRetry(itransport.RetryConfig{
		MaxRetries:  t.config.ModeRetries,
		RetryDelay:  t.config.ModeDelay,
		Description: fmt.Sprintf("waiting for mode 0x%02X on %s", mode, t.name),
	}, func() (struct{}, bool, error) {
		stat, err := t.read(regCANSTAT)
		if err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, stat&modeMask != mode, nil
	})
	if errors.Is(err, itransport.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %w", ErrModeChange, err)
	}
	return err
}

func (t *Transport) read(reg byte) (byte, error) {
	out, err := t.transfer(1, instRead, reg)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (t *Transport) write(reg byte, values ...byte) error {
	return t.cmd(append([]byte{instWrite, reg}, values...)...)
}

func (t *Transport) readStatus() (byte, error) {
	out, err := t.transfer(1, instReadStatus)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (t *Transport) cmd(w ...byte) error {
	_, err := t.transfer(0, w...)
	return err
}

// transfer clocks out w followed by n dummy bytes and returns the n bytes
// read back after w
func (t *Transport) transfer(n int, w ...byte) ([]byte, error) {
	total := len(w) + n
	if cap(t.tx) < total {
		t.tx = make([]byte, total)
		t.rx = make([]byte, total)
	}
	tx, rx := t.tx[:total], t.rx[:total]
	copy(tx, w)
	clear(tx[len(w):])

	if err := t.conn.Tx(tx, rx); err != nil {
		return nil, mbnet.NewTransportError("spi", t.name,
			fmt.Errorf("%w: %w", mbnet.ErrTransportWrite, err), mbnet.ErrorTypeTransient)
	}
	out := make([]byte, n)
	copy(out, rx[len(w):])
	return out, nil
}

var _ mbnet.Transport = (*Transport)(nil)

// Probe reads status registers to tell a controller from a floating
// bus. Nothing is written to the chip.
func Probe(conn Conn) (bool, error) {
	t := &Transport{conn: conn, name: "probe"}
	stat, err := t.read(regCANSTAT)
	if err != nil {
		return false, err
	}
	cnf3, err := t.read(regCNF3)
	if err != nil {
		return false, err
	}
	// unimplemented bits read as zero on a real chip
	return stat&0x11 == 0 && cnf3&0x38 == 0, nil
}
