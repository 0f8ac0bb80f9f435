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

// Package transport provides internal transport utilities shared by the
// protocol engine and the transport backends
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRetriesExhausted is returned by WithRetry when every attempt asked
	// to be retried
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrDeadline is returned by TimeoutRetry when the timeout elapsed
	ErrDeadline = errors.New("deadline exceeded")
)

// RetryOperation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: any permanent error that should stop retries
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	OnRetry     func() error
	Description string
	MaxRetries  int
	RetryDelay  time.Duration
}

// WithRetry executes an operation at most MaxRetries+1 times
func WithRetry[T any](config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}

		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}

	if config.Description != "" {
		return zero, errors.Join(ErrRetriesExhausted, errors.New(config.Description))
	}
	return zero, ErrRetriesExhausted
}

// TimeoutRetry keeps running operation until it stops asking for a retry,
// the timeout elapses or ctx is done. The operation always runs at least
// once. pause is slept between attempts; zero yields a tight loop.
func TimeoutRetry[T any](ctx context.Context, timeout, pause time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if !time.Now().Before(deadline) {
			return zero, ErrDeadline
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if pause > 0 {
			time.Sleep(pause)
		}
	}
}
