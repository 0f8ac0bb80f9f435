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

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-mbnet"
)

var (
	cmdScan = &cobra.Command{
		Use:   "scan",
		Short: "Discover the slaves on the bus",
		Long:  `Runs discovery as a master until every candidate id has answered or given up, then prints the slave table.`,
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
)

var scanTimeout time.Duration

func init() {
	rootCmd.AddCommand(cmdScan)
	cmdScan.Flags().DurationVar(&scanTimeout, "timeout", 30*time.Second, "Give up after this long")
}

func runScan(cmd *cobra.Command, _ []string) error {
	s, err := openSession(0)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	deadline := time.Now().Add(scanTimeout)
	for !s.node.DiscoveryComplete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("discovery incomplete after %s", scanTimeout)
		}
		if err := s.node.ScanStep(ctx); err != nil {
			return err
		}
	}

	printSlaves(s.node.Slaves())
	return nil
}

func printSlaves(slaves []mbnet.SlaveInfo) {
	if len(slaves) == 0 {
		_, _ = fmt.Println("No slaves found")
		return
	}
	_, _ = fmt.Printf("%-5s %-6s %-6s %-6s %s\n", "SLOT", "NODE", "TYPE", "PROTO", "VERSION")
	for _, sl := range slaves {
		_, _ = fmt.Printf("%-5d %-6s %-6s %-6d %d.%d\n",
			sl.Index, sl.ID, sl.Pong.Type(), sl.Pong.ProtocolVersion, sl.Pong.NodeVersion, sl.Pong.NodeSubversion)
	}
}
