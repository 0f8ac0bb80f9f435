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
	"context"
	"sync"
)

// MockTransport is an in-memory Transport for tests. Frames are routed
// into the two queues through the installed acceptance filters, exactly
// like a controller would. A responder can be installed to play the
// remote side of every transmitted frame.
type MockTransport struct {
	sendErr    error
	receiveErr error
	responder  func(f Frame) []Frame
	filters    [2]*AcceptanceFilter
	queues     [2][]Frame
	sent       []Frame
	polls      [2]int
	busy       int
	mu         sync.Mutex
	closed     bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send records f and hands it to the responder. The responder's frames
// are delivered through the filters afterwards.
func (m *MockTransport) Send(_ context.Context, f Frame) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrTransportClosed
	}
	if m.busy > 0 {
		m.busy--
		m.mu.Unlock()
		return NewMailboxBusyError("send", "mock")
	}
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, f)
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		for _, reply := range responder(f) {
			m.Deliver(reply)
		}
	}
	return nil
}

// TryReceive pops the oldest frame of q
func (m *MockTransport) TryReceive(q Queue) (Frame, bool, error) {
	if err := CheckQueue(q); err != nil {
		return Frame{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.polls[q]++
	if m.closed {
		return Frame{}, false, ErrTransportClosed
	}
	if m.receiveErr != nil {
		return Frame{}, false, m.receiveErr
	}
	if len(m.queues[q]) == 0 {
		return Frame{}, false, nil
	}
	f := m.queues[q][0]
	m.queues[q] = m.queues[q][1:]
	return f, true, nil
}

// SetFilter installs the acceptance filter of q
func (m *MockTransport) SetFilter(q Queue, filter AcceptanceFilter) error {
	if err := CheckQueue(q); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[q] = &filter
	return nil
}

// Deliver routes f as if it arrived from the bus. It returns false when
// no filter accepted the frame.
func (m *MockTransport) Deliver(f Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range []Queue{QueueRequest, QueueAck} {
		if m.filters[q] != nil && m.filters[q].Match(f) {
			m.queues[q] = append(m.queues[q], f)
			return true
		}
	}
	return false
}

// Enqueue puts f straight into q, bypassing the filters
func (m *MockTransport) Enqueue(q Queue, f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[q] = append(m.queues[q], f)
}

// SetResponder installs the function answering transmitted frames
func (m *MockTransport) SetResponder(fn func(f Frame) []Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

// SetBusy makes the next n sends fail with ErrMailboxBusy
func (m *MockTransport) SetBusy(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = n
}

// SetSendError makes every send fail with err; nil clears it
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetReceiveError makes every receive fail with err; nil clears it
func (m *MockTransport) SetReceiveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErr = err
}

// Sent returns a copy of every transmitted frame
func (m *MockTransport) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.sent...)
}

// SentCount returns the number of transmitted frames
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ClearSent forgets the transmitted frames
func (m *MockTransport) ClearSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// PollCount returns how often q was polled
func (m *MockTransport) PollCount(q Queue) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[q]
}

// QueueLen returns the number of frames waiting in q
func (m *MockTransport) QueueLen(q Queue) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[q])
}

// Filter returns the filter installed for q
func (m *MockTransport) Filter(q Queue) (AcceptanceFilter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filters[q] == nil {
		return AcceptanceFilter{}, false
	}
	return *m.filters[q], true
}

// Close marks the transport as closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsConnected returns true until Close is called
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}
