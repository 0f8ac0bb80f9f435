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
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/ZaparooProject/go-mbnet/detection"
)

// Config contains the tunables of a Node
type Config struct {
	// Discovery configures the slave scanner of a master node
	Discovery DiscoveryConfig
	// AckPollBudget is the number of acknowledge polls before WaitAck
	// gives up with ErrTimeout
	AckPollBudget int
	// AckPollInterval is slept between acknowledge polls. Zero counts
	// polls only, which is what a tight embedded loop does.
	AckPollInterval time.Duration
	// TransmitTimeout bounds the wait for a free transmit mailbox
	TransmitTimeout time.Duration
	// TransmitRetryDelay is slept between attempts on a busy mailbox
	TransmitRetryDelay time.Duration
	// LockIdlePolls is how often Handler polls an empty request queue
	// while locked before returning to its caller
	LockIdlePolls int
	// FlushStaleAcks drops acknowledges left in the queue before a new
	// request is sent
	FlushStaleAcks bool
}

// DefaultConfig returns the default node configuration
func DefaultConfig() *Config {
	return &Config{
		Discovery:          DefaultDiscoveryConfig(),
		AckPollBudget:      1000,
		AckPollInterval:    0,
		TransmitTimeout:    100 * time.Millisecond,
		TransmitRetryDelay: 0,
		LockIdlePolls:      1000,
		FlushStaleAcks:     true,
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.AckPollBudget < 1 {
		return fmt.Errorf("ack poll budget must be positive, got %d", c.AckPollBudget)
	}
	if c.AckPollInterval < 0 || c.TransmitTimeout < 0 || c.TransmitRetryDelay < 0 {
		return errors.New("durations must not be negative")
	}
	if c.LockIdlePolls < 0 {
		return fmt.Errorf("lock idle polls must not be negative, got %d", c.LockIdlePolls)
	}
	return c.Discovery.Validate()
}

// Node is one MBNet participant. A node with a zero low nibble in its id
// may act as master and slave at the same time; any other node is a slave
// only.
//
// Thread Safety: Node is NOT thread-safe. Handler, the master operations
// and SendAck must be called from a single goroutine, the way a firmware
// main loop would call them. GetMetrics may be called from anywhere.
type Node struct {
	transport Transport
	config    *Config
	log       types.Logger
	hooks     Hooks
	metrics   *nodeMetrics
	pending   *pendingRequest
	disc      *discovery
	lock      lockState
	id        NodeID
	idSet     bool
}

// New creates a node on top of transport. The node stays unconfigured
// until an id is set with WithNodeID or SetNodeID.
func New(transport Transport, opts ...Option) (*Node, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	node := &Node{
		transport: transport,
		config:    DefaultConfig(),
		hooks:     NopHooks{},
		metrics:   &nodeMetrics{},
	}
	node.applyTransportTiming()

	for _, opt := range opts {
		if err := opt(node); err != nil {
			return nil, err
		}
	}

	if err := node.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	node.disc = newDiscovery(node.config.Discovery)
	if node.idSet {
		// options may run in any order; filters go in last
		if err := node.SetNodeID(node.id); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// Transport returns the underlying transport
func (n *Node) Transport() Transport {
	return n.transport
}

// Config returns a copy of the active configuration
func (n *Node) Config() Config {
	return *n.config
}

// Reset clears the pending request, the slave lock and the discovery
// tables. The node id and the acceptance filters are kept.
func (n *Node) Reset() {
	n.pending = nil
	n.lock = lockState{}
	n.ResetDiscovery()
	if n.log != nil {
		n.log.Debug().Str("node", n.idString()).Msg("mbnet state reset")
	}
}

// Close closes the transport
func (n *Node) Close() error {
	if err := n.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func (n *Node) idString() string {
	if !n.idSet {
		return "unconfigured"
	}
	return n.id.String()
}

// TransportFactory creates a transport for an explicit device path
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory creates a transport for a detected device
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for Connect
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	detectOptions          *detection.Options
	nodeOptions            []Option
	autoDetect             bool
}

// WithAutoDetection picks the first device found by the detection registry
func WithAutoDetection(opts *detection.Options) ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		c.detectOptions = opts
		return nil
	}
}

// WithNodeOptions adds node level options
func WithNodeOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.nodeOptions = append(c.nodeOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// Connect opens a transport for path, or for the first detected device
// when path is empty or auto detection was requested, and builds a node
// on it.
//
// Example usage:
//
//	node, err := mbnet.Connect("can0",
//		mbnet.WithTransportFactory(openSocketCAN),
//		mbnet.WithNodeOptions(mbnet.WithNodeID(0x00)))
func Connect(path string, opts ...ConnectOption) (*Node, error) {
	config := &connectConfig{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	transport, err := createTransport(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	node, err := New(transport, config.nodeOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return node, nil
}

func createTransport(path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(config.detectOptions, config.transportDeviceFactory)
	}

	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(opts *detection.Options, factory TransportFromDeviceFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	if opts == nil {
		defaults := detection.DefaultOptions()
		opts = &defaults
	}

	devices, err := detection.DetectAll(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return factory(devices[0])
}
