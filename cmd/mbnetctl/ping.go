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
)

var (
	cmdPing = &cobra.Command{
		Use:   "ping <slave>",
		Short: "Ping a slave and print its identification",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
		RunE:  runPing,
	}
)

var pingCount int
var pingInterval time.Duration

func init() {
	rootCmd.AddCommand(cmdPing)
	cmdPing.Flags().IntVarP(&pingCount, "count", "k", 1, "Number of pings")
	cmdPing.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "Pause between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	slave, err := parseNodeID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(0)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	failures := 0
	for i := range pingCount {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pingInterval):
			}
		}

		start := time.Now()
		pong, err := s.node.Ping(ctx, slave)
		if err != nil {
			failures++
			_, _ = fmt.Printf("%s: %v\n", slave, err)
			continue
		}
		_, _ = fmt.Printf("%s: type=%s protocol=%d version=%d.%d time=%s\n",
			slave, pong.Type(), pong.ProtocolVersion, pong.NodeVersion, pong.NodeSubversion,
			time.Since(start).Round(time.Microsecond))
	}

	if failures == pingCount {
		return fmt.Errorf("no answer from %s", slave)
	}
	return nil
}
