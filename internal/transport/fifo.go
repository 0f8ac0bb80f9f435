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

package transport

import "sync"

// FIFO is a bounded first-in first-out queue modelled on a hardware
// receive FIFO: when full, new items are dropped and counted as overruns
// instead of displacing older ones.
type FIFO[T any] struct {
	items    []T
	head     int
	count    int
	overruns uint64
	mu       sync.Mutex
}

// NewFIFO creates a FIFO holding at most depth items (minimum 1)
func NewFIFO[T any](depth int) *FIFO[T] {
	if depth < 1 {
		depth = 1
	}
	return &FIFO[T]{items: make([]T, depth)}
}

// Push appends v. It returns false and counts an overrun when full.
func (q *FIFO[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.items) {
		q.overruns++
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = v
	q.count++
	return true
}

// Pop removes the oldest item
func (q *FIFO[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return v, true
}

// Len returns the number of queued items
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Overruns returns how many pushes were dropped because the queue was full
func (q *FIFO[T]) Overruns() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overruns
}

// Reset drops every queued item
func (q *FIFO[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	q.head = 0
	q.count = 0
}
