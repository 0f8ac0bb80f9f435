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

// Package config reads node configuration files written in HCL.
//
//	node "master" {
//	  id = 16
//	  transport {
//	    type   = "socketcan"
//	    device = "can0"
//	  }
//	  discovery {
//	    first = 0
//	    last  = 15
//	  }
//	  timing {
//	    ack_poll_budget   = 1000
//	    ack_poll_interval = "100us"
//	  }
//	}
//
//	metrics {
//	  listen = ":9110"
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/ZaparooProject/go-mbnet"
)

var (
	ErrNodeNotFound = errors.New("node not found in config")
	ErrNoNodes      = errors.New("config has no node blocks")
)

type Schema struct {
	Node    []*NodeSchema  `hcl:"node,block"`
	Log     *LogSchema     `hcl:"log,block"`
	Metrics *MetricsSchema `hcl:"metrics,block"`
}

type NodeSchema struct {
	Name      string           `hcl:"name,label"`
	ID        int              `hcl:"id,attr"`
	Transport *TransportSchema `hcl:"transport,block"`
	Discovery *DiscoverySchema `hcl:"discovery,block"`
	Timing    *TimingSchema    `hcl:"timing,block"`
	Responder *ResponderSchema `hcl:"responder,block"`
}

type TransportSchema struct {
	Type         string `hcl:"type,attr"`
	Device       string `hcl:"device,optional"`
	Bitrate      int    `hcl:"bitrate,optional"`
	BaudRate     int    `hcl:"baudrate,optional"`
	QueueDepth   int    `hcl:"queue_depth,optional"`
	Oscillator   int    `hcl:"oscillator,optional"`
	SPIFrequency int    `hcl:"spi_frequency,optional"`
}

type DiscoverySchema struct {
	Enabled    *bool `hcl:"enabled,optional"`
	First      *int  `hcl:"first,optional"`
	Last       *int  `hcl:"last,optional"`
	TableSize  *int  `hcl:"table_size,optional"`
	MaxRetries *int  `hcl:"max_retries,optional"`
}

type TimingSchema struct {
	AckPollBudget      int    `hcl:"ack_poll_budget,optional"`
	AckPollInterval    string `hcl:"ack_poll_interval,optional"`
	TransmitTimeout    string `hcl:"transmit_timeout,optional"`
	TransmitRetryDelay string `hcl:"transmit_retry_delay,optional"`
	LockIdlePolls      int    `hcl:"lock_idle_polls,optional"`
	FlushStaleAcks     *bool  `hcl:"flush_stale_acks,optional"`
}

// ResponderSchema describes the node a slave presents when serving
type ResponderSchema struct {
	NodeType   string `hcl:"node_type,optional"`
	Protocol   int    `hcl:"protocol,optional"`
	Version    int    `hcl:"version,optional"`
	Subversion int    `hcl:"subversion,optional"`
	RAMSize    int    `hcl:"ram_size,optional"`
}

type LogSchema struct {
	Level string `hcl:"level,optional"`
}

type MetricsSchema struct {
	Listen    string `hcl:"listen,attr"`
	Namespace string `hcl:"namespace,optional"`
}

func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	s := new(Schema)
	if err := s.Decode(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Schema) Decode(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, s)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	return nil
}

// Lookup returns the node block called name. An empty name selects the
// first block.
func (s *Schema) Lookup(name string) (*NodeSchema, error) {
	if len(s.Node) == 0 {
		return nil, ErrNoNodes
	}
	if name == "" {
		return s.Node[0], nil
	}
	for _, n := range s.Node {
		if n.Name == name {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
}

// NodeConfig merges the node block into the library defaults
func (ns *NodeSchema) NodeConfig() (*mbnet.Config, error) {
	config := mbnet.DefaultConfig()

	if d := ns.Discovery; d != nil {
		setBool(&config.Discovery.Enabled, d.Enabled)
		if d.First != nil {
			config.Discovery.First = mbnet.NodeID(*d.First)
		}
		if d.Last != nil {
			config.Discovery.Last = mbnet.NodeID(*d.Last)
		}
		setInt(&config.Discovery.TableSize, d.TableSize)
		setInt(&config.Discovery.MaxRetries, d.MaxRetries)
		if (d.First != nil && *d.First > int(mbnet.MaxNodeID)) || (d.Last != nil && *d.Last > int(mbnet.MaxNodeID)) {
			return nil, fmt.Errorf("node %q: %w", ns.Name, mbnet.ErrInvalidNodeID)
		}
	}

	if t := ns.Timing; t != nil {
		if t.AckPollBudget != 0 {
			config.AckPollBudget = t.AckPollBudget
		}
		if t.LockIdlePolls != 0 {
			config.LockIdlePolls = t.LockIdlePolls
		}
		setBool(&config.FlushStaleAcks, t.FlushStaleAcks)
		for _, d := range []struct {
			dst  *time.Duration
			name string
			val  string
		}{
			{&config.AckPollInterval, "ack_poll_interval", t.AckPollInterval},
			{&config.TransmitTimeout, "transmit_timeout", t.TransmitTimeout},
			{&config.TransmitRetryDelay, "transmit_retry_delay", t.TransmitRetryDelay},
		} {
			if d.val == "" {
				continue
			}
			v, err := time.ParseDuration(d.val)
			if err != nil {
				return nil, fmt.Errorf("node %q: %s: %w", ns.Name, d.name, err)
			}
			*d.dst = v
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("node %q: %w", ns.Name, err)
	}
	return config, nil
}

// NodeOptions returns the options that configure a node as described.
// Timing set in the file overrides the transport defaults.
func (ns *NodeSchema) NodeOptions() ([]mbnet.Option, error) {
	if ns.ID < 0 || ns.ID > int(mbnet.MaxNodeID) {
		return nil, fmt.Errorf("node %q: %w: %d", ns.Name, mbnet.ErrInvalidNodeID, ns.ID)
	}
	config, err := ns.NodeConfig()
	if err != nil {
		return nil, err
	}

	opts := []mbnet.Option{mbnet.WithNodeID(mbnet.NodeID(ns.ID)), mbnet.WithDiscovery(config.Discovery)}
	if t := ns.Timing; t != nil {
		opts = append(opts,
			mbnet.WithAckPollBudget(config.AckPollBudget),
			mbnet.WithLockIdlePolls(config.LockIdlePolls),
			mbnet.WithStaleAckFlush(config.FlushStaleAcks))
		if t.AckPollInterval != "" {
			opts = append(opts, mbnet.WithAckPollInterval(config.AckPollInterval))
		}
		if t.TransmitTimeout != "" {
			opts = append(opts, mbnet.WithTransmitTimeout(config.TransmitTimeout))
		}
		if t.TransmitRetryDelay != "" {
			opts = append(opts, mbnet.WithTransmitRetryDelay(config.TransmitRetryDelay))
		}
	}
	return opts, nil
}

// Pong returns the identity answered to pings. Unset fields fall back to
// protocol 1, type "GOMB" and version 1.0.
func (rs *ResponderSchema) Pong() mbnet.Pong {
	nodeType, protocol, version, subversion := "GOMB", 1, 1, 0
	if rs != nil {
		if rs.NodeType != "" {
			nodeType = rs.NodeType
		}
		if rs.Protocol != 0 {
			protocol = rs.Protocol
		}
		if rs.Version != 0 {
			version = rs.Version
		}
		subversion = rs.Subversion
	}
	return mbnet.NewPong(uint8(protocol), nodeType, uint8(version), uint8(subversion))
}

// MemorySize returns the RAM image size served to masters, 64k by default
func (rs *ResponderSchema) MemorySize() int {
	if rs == nil || rs.RAMSize <= 0 {
		return 0x10000
	}
	return rs.RAMSize
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
