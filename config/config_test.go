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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mbnet"
)

const sample = `
node "master" {
  id = 16
  transport {
    type   = "socketcan"
    device = "vcan0"
  }
  discovery {
    first       = 1
    last        = 40
    table_size  = 16
    max_retries = 3
  }
  timing {
    ack_poll_budget   = 500
    ack_poll_interval = "100us"
    transmit_timeout  = "50ms"
    flush_stale_acks  = false
  }
}

node "core" {
  id = 33
  transport {
    type    = "slcan"
    device  = "/dev/ttyACM0"
    bitrate = 250000
  }
  discovery {
    enabled = false
  }
  responder {
    node_type = "CORE"
    version   = 2
    ram_size  = 1024
  }
}

log {
  level = "debug"
}

metrics {
  listen = ":9110"
}
`

func TestSchema_Decode(t *testing.T) {
	t.Parallel()

	s := new(Schema)
	require.NoError(t, s.Decode([]byte(sample)))
	require.Len(t, s.Node, 2)

	master, err := s.Lookup("master")
	require.NoError(t, err)
	assert.Equal(t, 16, master.ID)
	assert.Equal(t, "socketcan", master.Transport.Type)
	assert.Equal(t, "vcan0", master.Transport.Device)

	core, err := s.Lookup("core")
	require.NoError(t, err)
	assert.Equal(t, 250000, core.Transport.Bitrate)

	first, err := s.Lookup("")
	require.NoError(t, err)
	assert.Same(t, master, first)

	_, err = s.Lookup("missing")
	require.ErrorIs(t, err, ErrNodeNotFound)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, ":9110", s.Metrics.Listen)
}

func TestSchema_DecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "syntax", src: `node "a" {`},
		{name: "missing id", src: "node \"a\" {\n  transport {\n    type = \"loopback\"\n  }\n}\n"},
		{name: "unknown attribute", src: "node \"a\" {\n  id = 1\n  colour = \"red\"\n}\n"},
		{name: "wrong type", src: "node \"a\" {\n  id = \"one\"\n}\n"},
		{name: "missing transport type", src: "node \"a\" {\n  id = 1\n  transport {\n  }\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, new(Schema).Decode([]byte(tt.src)))
		})
	}
}

func TestLookup_Empty(t *testing.T) {
	t.Parallel()

	_, err := new(Schema).Lookup("")
	require.ErrorIs(t, err, ErrNoNodes)
}

func TestNodeConfig(t *testing.T) {
	t.Parallel()

	s := new(Schema)
	require.NoError(t, s.Decode([]byte(sample)))

	master, err := s.Lookup("master")
	require.NoError(t, err)
	config, err := master.NodeConfig()
	require.NoError(t, err)

	assert.Equal(t, mbnet.NodeID(1), config.Discovery.First)
	assert.Equal(t, mbnet.NodeID(40), config.Discovery.Last)
	assert.Equal(t, 16, config.Discovery.TableSize)
	assert.Equal(t, 3, config.Discovery.MaxRetries)
	assert.True(t, config.Discovery.Enabled)
	assert.Equal(t, 500, config.AckPollBudget)
	assert.Equal(t, 100*time.Microsecond, config.AckPollInterval)
	assert.Equal(t, 50*time.Millisecond, config.TransmitTimeout)
	assert.False(t, config.FlushStaleAcks)

	core, err := s.Lookup("core")
	require.NoError(t, err)
	config, err = core.NodeConfig()
	require.NoError(t, err)
	assert.False(t, config.Discovery.Enabled)
	assert.Equal(t, mbnet.DefaultConfig().AckPollBudget, config.AckPollBudget)
}

func TestNodeConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node *NodeSchema
	}{
		{
			name: "bad duration",
			node: &NodeSchema{Name: "a", Timing: &TimingSchema{AckPollInterval: "soon"}},
		},
		{
			name: "range beyond node ids",
			node: &NodeSchema{Name: "a", Discovery: &DiscoverySchema{Last: ptr(200)}},
		},
		{
			name: "inverted range",
			node: &NodeSchema{Name: "a", Discovery: &DiscoverySchema{First: ptr(9), Last: ptr(3)}},
		},
		{
			name: "negative budget",
			node: &NodeSchema{Name: "a", Timing: &TimingSchema{AckPollBudget: -1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.node.NodeConfig()
			require.Error(t, err)
		})
	}
}

func TestNodeOptions(t *testing.T) {
	t.Parallel()

	s := new(Schema)
	require.NoError(t, s.Decode([]byte(sample)))
	master, err := s.Lookup("master")
	require.NoError(t, err)

	opts, err := master.NodeOptions()
	require.NoError(t, err)

	node, err := mbnet.New(mbnet.NewMockTransport(), opts...)
	require.NoError(t, err)
	id, ok := node.NodeID()
	require.True(t, ok)
	assert.Equal(t, mbnet.NodeID(0x10), id)

	config := node.Config()
	assert.Equal(t, 500, config.AckPollBudget)
	assert.Equal(t, 100*time.Microsecond, config.AckPollInterval)
	assert.Equal(t, mbnet.NodeID(40), config.Discovery.Last)

	_, err = (&NodeSchema{Name: "x", ID: 128}).NodeOptions()
	require.ErrorIs(t, err, mbnet.ErrInvalidNodeID)
}

func TestResponder(t *testing.T) {
	t.Parallel()

	var none *ResponderSchema
	assert.Equal(t, mbnet.NewPong(1, "GOMB", 1, 0), none.Pong())
	assert.Equal(t, 0x10000, none.MemorySize())

	rs := &ResponderSchema{NodeType: "CORE", Version: 2, Subversion: 5, RAMSize: 1024}
	assert.Equal(t, mbnet.NewPong(1, "CORE", 2, 5), rs.Pong())
	assert.Equal(t, 1024, rs.MemorySize())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mbnet.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Node, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func ptr(v int) *int { return &v }
