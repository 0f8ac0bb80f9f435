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
)

// Option is a functional option for configuring a Node
type Option func(*Node) error

// WithNodeID configures the node id. Filters are installed once all
// options have been applied.
func WithNodeID(id NodeID) Option {
	return func(n *Node) error {
		if err := id.Validate(); err != nil {
			return err
		}
		n.id = id
		n.idSet = true
		return nil
	}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(log types.Logger) Option {
	return func(n *Node) error {
		n.log = log
		return nil
	}
}

// WithHooks installs the application hooks called for built-in special
// requests
func WithHooks(hooks Hooks) Option {
	return func(n *Node) error {
		if hooks == nil {
			hooks = NopHooks{}
		}
		n.hooks = hooks
		return nil
	}
}

// WithDiscovery replaces the discovery configuration
func WithDiscovery(config DiscoveryConfig) Option {
	return func(n *Node) error {
		if err := config.Validate(); err != nil {
			return err
		}
		n.config.Discovery = config
		return nil
	}
}

// WithAckPollBudget sets how many acknowledge polls WaitAck performs
func WithAckPollBudget(polls int) Option {
	return func(n *Node) error {
		if polls < 1 {
			return fmt.Errorf("ack poll budget must be positive, got %d", polls)
		}
		n.config.AckPollBudget = polls
		return nil
	}
}

// WithAckPollInterval sets the pause between acknowledge polls
func WithAckPollInterval(interval time.Duration) Option {
	return func(n *Node) error {
		n.config.AckPollInterval = interval
		return nil
	}
}

// WithTransmitTimeout bounds the wait for a free transmit mailbox
func WithTransmitTimeout(timeout time.Duration) Option {
	return func(n *Node) error {
		n.config.TransmitTimeout = timeout
		return nil
	}
}

// WithTransmitRetryDelay sets the pause between attempts on a busy mailbox
func WithTransmitRetryDelay(delay time.Duration) Option {
	return func(n *Node) error {
		n.config.TransmitRetryDelay = delay
		return nil
	}
}

// WithLockIdlePolls sets how long Handler keeps polling while locked
func WithLockIdlePolls(polls int) Option {
	return func(n *Node) error {
		n.config.LockIdlePolls = polls
		return nil
	}
}

// WithStaleAckFlush enables or disables dropping queued acknowledges
// before a new request
func WithStaleAckFlush(enabled bool) Option {
	return func(n *Node) error {
		n.config.FlushStaleAcks = enabled
		return nil
	}
}

// WithConfig replaces the whole configuration
func WithConfig(config *Config) Option {
	return func(n *Node) error {
		if config == nil {
			return errors.New("nil config")
		}
		if err := config.Validate(); err != nil {
			return err
		}
		c := *config
		n.config = &c
		return nil
	}
}
