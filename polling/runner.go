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

package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-mbnet"
)

// Runner errors
var (
	ErrRunnerRunning = errors.New("runner is already running")
	ErrNilNode       = errors.New("nil node")
)

// Config holds configuration options for the Runner
type Config struct {
	// Logger receives loop errors. Nil disables logging.
	Logger types.Logger
	// Interval is the period between Handler invocations while the bus
	// is active
	Interval time.Duration
	// IdleInterval replaces Interval once no request has been handled
	// for IdleAfter. Zero disables the slowdown.
	IdleInterval time.Duration
	IdleAfter    time.Duration
}

// DefaultConfig returns a Runner configuration polling every millisecond
// and slowing to 20ms after five idle seconds
func DefaultConfig() *Config {
	return &Config{
		Interval:     time.Millisecond,
		IdleInterval: 20 * time.Millisecond,
		IdleAfter:    5 * time.Second,
	}
}

// Metrics tracks operational metrics of a Runner
type Metrics struct {
	Cycles      int64         // Handler invocations
	Errors      int64         // Handler invocations that returned an error
	LastLatency time.Duration // Duration of the last invocation
	Interval    time.Duration // Currently applied interval
}

// Runner drives a node's Handler on a ticker in a background goroutine.
// Every other use of the node must go through Do so that bus access
// stays serialized.
type Runner struct {
	node    *mbnet.Node
	handler mbnet.RequestHandler
	config  *Config
	// OnError is called with every error returned by Handler
	OnError func(error)

	cancel   context.CancelFunc
	done     chan struct{}
	nodeMu   sync.Mutex
	stopMu   sync.Mutex
	running  atomic.Bool
	cycles   atomic.Int64
	errs     atomic.Int64
	latency  atomic.Int64
	interval atomic.Int64
	lastWork atomic.Int64
}

// NewRunner creates a runner for node. A nil config selects DefaultConfig.
func NewRunner(node *mbnet.Node, handler mbnet.RequestHandler, config *Config) (*Runner, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, errors.New("polling interval must be positive")
	}
	r := &Runner{
		node:    node,
		handler: handler,
		config:  config,
	}
	r.interval.Store(int64(config.Interval))
	return r, nil
}

// Start begins the Handler loop (non-blocking)
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunnerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.stopMu.Lock()
	r.cancel = cancel
	r.done = done
	r.stopMu.Unlock()

	r.lastWork.Store(time.Now().UnixNano())
	go func() {
		defer func() {
			r.running.Store(false)
			close(done)
		}()
		r.loop(loopCtx)
	}()
	return nil
}

// Stop cancels the loop and blocks until it has exited
func (r *Runner) Stop() error {
	r.stopMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.stopMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// IsRunning returns whether the loop is active
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Do runs fn with exclusive access to the node. It is the only safe way
// to issue master operations while the loop is running.
func (r *Runner) Do(ctx context.Context, fn func(context.Context, *mbnet.Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.nodeMu.Lock()
	defer r.nodeMu.Unlock()
	return fn(ctx, r.node)
}

// GetMetrics returns a snapshot of the runner metrics
func (r *Runner) GetMetrics() Metrics {
	return Metrics{
		Cycles:      r.cycles.Load(),
		Errors:      r.errs.Load(),
		LastLatency: time.Duration(r.latency.Load()),
		Interval:    time.Duration(r.interval.Load()),
	}
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
			if next := r.nextInterval(); next != time.Duration(r.interval.Swap(int64(next))) {
				ticker.Reset(next)
			}
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	r.nodeMu.Lock()
	before := r.node.GetMetrics().RequestsHandled
	start := time.Now()
	err := r.node.Handler(ctx, r.handler)
	elapsed := time.Since(start)
	after := r.node.GetMetrics().RequestsHandled
	r.nodeMu.Unlock()

	r.cycles.Add(1)
	r.latency.Store(int64(elapsed))
	if after != before {
		r.lastWork.Store(start.UnixNano())
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	r.errs.Add(1)
	if r.config.Logger != nil {
		r.config.Logger.Warn().Err(err).Msg("handler cycle failed")
	}
	if r.OnError != nil {
		r.OnError(err)
	}
}

// nextInterval slows polling down once the node has been idle for IdleAfter
func (r *Runner) nextInterval() time.Duration {
	if r.config.IdleInterval <= 0 || r.config.IdleAfter <= 0 {
		return r.config.Interval
	}
	idle := time.Duration(time.Now().UnixNano() - r.lastWork.Load())
	if idle > r.config.IdleAfter {
		return r.config.IdleInterval
	}
	return r.config.Interval
}
