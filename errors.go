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
	"errors"
	"fmt"
)

// Configuration errors. These fail fast and never put traffic on the bus.
var (
	ErrNotConfigured = errors.New("node id not configured")
	ErrNotMaster     = errors.New("node is not a master (low nibble of id must be zero)")
	ErrInvalidTarget = errors.New("invalid master id (low nibble must be zero)")
	ErrInvalidNodeID = errors.New("invalid node id (valid range: 0-127)")
)

// Protocol and sequencing errors
var (
	ErrTimeout       = errors.New("acknowledge timeout")
	ErrSequence      = errors.New("resend requested for a slave without a pending request")
	ErrOutOfRange    = errors.New("slave id outside of discovery range")
	ErrSlaveNotFound = errors.New("slave not found")
	ErrAckError      = errors.New("slave answered with error acknowledge")
	ErrNoCallback    = errors.New("no request callback installed")
)

// Codec errors
var (
	ErrInvalidLength = errors.New("invalid data length (valid range: 0-8)")
	ErrReservedBits  = errors.New("identifier uses bits above the 29-bit range")
	ErrFieldRange    = errors.New("identifier field out of range")
	ErrInvalidFrame  = errors.New("not an extended data frame")
)

// Transport errors
var (
	ErrMailboxBusy      = errors.New("all transmit mailboxes busy")
	ErrTransmitTimeout  = errors.New("timeout waiting for a free transmit mailbox")
	ErrTransportClosed  = errors.New("transport closed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrQueueOverrun     = errors.New("receive queue overrun")
	ErrUnsupportedQueue = errors.New("unsupported receive queue")
)

// ErrorType classifies transport failures for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away by trying again
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors are expected to clear up on their own
	ErrorTypeTransient
	// ErrorTypeTimeout errors are transient but took the full deadline
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TransportError wraps a backend failure with the operation and port that
// produced it
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error. Retryable follows the type.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransmitTimeout, ErrorTypeTimeout)
}

// NewMailboxBusyError reports that no transmit slot was free
func NewMailboxBusyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrMailboxBusy, ErrorTypeTransient)
}

// IsRetryable reports whether err may succeed when tried again. Only
// the exact transient sentinels and transport errors flagged retryable
// qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrMailboxBusy),
		errors.Is(err, ErrTransmitTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransmitTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrMailboxBusy),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
