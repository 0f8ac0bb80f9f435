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

// mbnetctl talks to an MBNet bus: it finds CAN interfaces, scans for
// slaves, pings them, reads and writes their RAM and can serve as a slave
// itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "mbnetctl",
		Short:         "MBNet bus tool.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

var (
	flagConfig    string
	flagName      string
	flagTransport string
	flagDevice    string
	flagNode      int
	flagBitrate   int
	flagDebug     bool
	flagTrace     bool
	flagMetrics   string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "HCL configuration file")
	pf.StringVar(&flagName, "name", "", "Node block to use from the configuration file (default: first)")
	pf.StringVarP(&flagTransport, "transport", "t", "", "Transport: socketcan, slcan or mcp2515 (default: guessed from device)")
	pf.StringVarP(&flagDevice, "device", "D", "", "Interface, serial port or SPI port. Leave empty for auto-detection.")
	pf.IntVarP(&flagNode, "node", "n", -1, "Own node id (0-127)")
	pf.IntVarP(&flagBitrate, "bitrate", "b", 0, "CAN bitrate for adapters that set it (default: 500000)")
	pf.BoolVarP(&flagDebug, "debug", "d", false, "Debug logging")
	pf.BoolVar(&flagTrace, "trace", false, "Trace logging, includes every frame")
	pf.StringVarP(&flagMetrics, "metrics", "m", "", "Prometheus metrics listen address")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
