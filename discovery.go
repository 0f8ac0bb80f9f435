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
	"errors"
	"fmt"
)

// DiscoveryConfig configures the slave scanner of a master node
type DiscoveryConfig struct {
	// First and Last bound the candidate ids, both inclusive
	First NodeID
	Last  NodeID
	// TableSize is the number of slave records; candidates answering
	// once the table is full end up absent
	TableSize int
	// MaxRetries is the number of pings a silent candidate gets
	MaxRetries int
	// Enabled runs one scan step in front of every Handler call
	Enabled bool
}

// DefaultDiscoveryConfig scans ids 0x00 to 0x0f into an 8 entry table
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		First:      0x00,
		Last:       0x0f,
		TableSize:  8,
		MaxRetries: 8,
		Enabled:    true,
	}
}

// Validate checks the discovery range and table size
func (c DiscoveryConfig) Validate() error {
	if c.Last > MaxNodeID || c.First > c.Last {
		return fmt.Errorf("%w: discovery range %v..%v", ErrInvalidNodeID, c.First, c.Last)
	}
	if c.TableSize < 0 {
		return fmt.Errorf("discovery table size must not be negative, got %d", c.TableSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("discovery retries must be positive, got %d", c.MaxRetries)
	}
	return nil
}

// Contains reports whether id is a discovery candidate
func (c DiscoveryConfig) Contains(id NodeID) bool {
	return id >= c.First && id <= c.Last
}

// SlaveStateKind tells where a candidate stands in discovery
type SlaveStateKind int

const (
	// SlaveUnresolved candidates are still being pinged
	SlaveUnresolved SlaveStateKind = iota
	// SlaveFound candidates answered and own a table slot
	SlaveFound
	// SlaveAbsent candidates never answered, or answered with the table full
	SlaveAbsent
)

func (k SlaveStateKind) String() string {
	switch k {
	case SlaveUnresolved:
		return "unresolved"
	case SlaveFound:
		return "found"
	case SlaveAbsent:
		return "absent"
	default:
		return fmt.Sprintf("SlaveStateKind(%d)", int(k))
	}
}

// SlaveState is the discovery state of one candidate. Retries is
// meaningful while unresolved, Index once found.
type SlaveState struct {
	Kind    SlaveStateKind
	Retries int
	Index   int
}

// SlaveInfo is a discovered slave and the pong it answered with
type SlaveInfo struct {
	Pong  Pong
	Msg   Message
	ID    NodeID
	Index int
}

type slaveRecord struct {
	msg  Message
	id   NodeID
	used bool
}

type discovery struct {
	states []SlaveState
	table  []slaveRecord
	config DiscoveryConfig
	cursor int
}

func newDiscovery(config DiscoveryConfig) *discovery {
	return &discovery{
		config: config,
		states: make([]SlaveState, int(config.Last)-int(config.First)+1),
		table:  make([]slaveRecord, config.TableSize),
	}
}

func (d *discovery) state(id NodeID) *SlaveState {
	return &d.states[int(id)-int(d.config.First)]
}

// next advances the cursor and returns the candidate under it. ok is
// false when the range holds nothing but self.
func (d *discovery) next(self NodeID) (NodeID, bool) {
	for range d.states {
		candidate := d.config.First + NodeID(d.cursor)
		d.cursor = (d.cursor + 1) % len(d.states)
		if candidate != self {
			return candidate, true
		}
	}
	return 0, false
}

// allocate stores msg in the first free slot
func (d *discovery) allocate(id NodeID, msg Message) (int, bool) {
	for i := range d.table {
		if !d.table[i].used {
			d.table[i] = slaveRecord{id: id, msg: msg, used: true}
			return i, true
		}
	}
	return -1, false
}

func (d *discovery) unresolved(self NodeID) int {
	count := 0
	for i, st := range d.states {
		if d.config.First+NodeID(i) == self {
			continue
		}
		if st.Kind == SlaveUnresolved {
			count++
		}
	}
	return count
}

// ScanStep advances discovery by one candidate: an unresolved candidate
// is pinged once, anything else is skipped. Handler calls it when the
// node is a master; it can also be driven directly. A timeout is not an
// error here, it only consumes one retry of the candidate.
func (n *Node) ScanStep(ctx context.Context) error {
	my, err := n.masterID()
	if err != nil {
		return err
	}

	d := n.disc
	candidate, ok := d.next(my)
	if !ok {
		return nil
	}

	st := d.state(candidate)
	if st.Kind != SlaveUnresolved {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	st.Retries++

	ack, err := n.Request(ctx, candidate, TOSPing, 0, Message{}, 0)
	if err != nil {
		// every failed ping counts, so a dead bus still ends discovery
		if st.Retries >= d.config.MaxRetries {
			*st = SlaveState{Kind: SlaveAbsent, Retries: st.Retries}
			n.metrics.slavesAbsent.Add(1)
			n.logDiscovery(candidate, st, "slave absent, retries exhausted")
		}
		n.metrics.discPending.Store(uint64(d.unresolved(my)))
		if !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("discovery ping of %v failed: %w", candidate, err)
		}
		return nil
	}

	index, ok := d.allocate(candidate, ack.Msg)
	if !ok {
		*st = SlaveState{Kind: SlaveAbsent, Retries: st.Retries}
		n.metrics.slavesAbsent.Add(1)
		n.logDiscovery(candidate, st, "slave table full")
	} else {
		*st = SlaveState{Kind: SlaveFound, Retries: st.Retries, Index: index}
		n.metrics.slavesFound.Add(1)
		n.logDiscovery(candidate, st, "slave found")
	}
	n.metrics.discPending.Store(uint64(d.unresolved(my)))
	return nil
}

func (n *Node) logDiscovery(id NodeID, st *SlaveState, msg string) {
	if n.log == nil {
		return
	}
	n.log.Info().
		Str("node", n.idString()).
		Str("slave", id.String()).
		Str("state", st.Kind.String()).
		Int("retries", st.Retries).
		Int("index", st.Index).
		Msg(msg)
}

// SlaveNodeInfoGet returns the record of a discovered slave
func (n *Node) SlaveNodeInfoGet(slave NodeID) (SlaveInfo, error) {
	if _, err := n.masterID(); err != nil {
		return SlaveInfo{}, err
	}
	if !n.disc.config.Contains(slave) {
		return SlaveInfo{}, fmt.Errorf("%w: %v", ErrOutOfRange, slave)
	}

	st := n.disc.state(slave)
	if st.Kind != SlaveFound {
		return SlaveInfo{}, fmt.Errorf("%w: %v is %v", ErrSlaveNotFound, slave, st.Kind)
	}

	rec := n.disc.table[st.Index]
	return SlaveInfo{ID: rec.id, Index: st.Index, Msg: rec.msg, Pong: rec.msg.Pong()}, nil
}

// SlaveState returns the discovery state of a candidate
func (n *Node) SlaveState(slave NodeID) (SlaveState, error) {
	if !n.disc.config.Contains(slave) {
		return SlaveState{}, fmt.Errorf("%w: %v", ErrOutOfRange, slave)
	}
	return *n.disc.state(slave), nil
}

// Slaves returns every discovered slave in table order
func (n *Node) Slaves() []SlaveInfo {
	slaves := make([]SlaveInfo, 0, len(n.disc.table))
	for i, rec := range n.disc.table {
		if !rec.used {
			continue
		}
		slaves = append(slaves, SlaveInfo{ID: rec.id, Index: i, Msg: rec.msg, Pong: rec.msg.Pong()})
	}
	return slaves
}

// DiscoveryComplete reports whether every candidate other than the node
// itself is found or absent
func (n *Node) DiscoveryComplete() bool {
	return n.disc.unresolved(n.scanSelf()) == 0
}

// ResetDiscovery forgets every result and starts scanning from scratch
func (n *Node) ResetDiscovery() {
	n.disc = newDiscovery(n.config.Discovery)
	n.metrics.discPending.Store(uint64(n.disc.unresolved(n.scanSelf())))
}

// scanSelf is the id discovery skips. An unconfigured node skips nothing.
func (n *Node) scanSelf() NodeID {
	if id, ok := n.NodeID(); ok {
		return id
	}
	return MaxNodeID + 1
}
