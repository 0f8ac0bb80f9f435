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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-mbnet/detection"
)

var (
	cmdDetect = &cobra.Command{
		Use:   "detect",
		Short: "List CAN interfaces and adapters",
		Long:  ``,
		Args:  cobra.NoArgs,
		RunE:  runDetect,
	}
)

var detectSafe bool
var detectTimeout time.Duration
var detectIgnore []string

func init() {
	rootCmd.AddCommand(cmdDetect)
	cmdDetect.Flags().BoolVarP(&detectSafe, "probe", "p", false, "Probe candidates to confirm them (opens ports)")
	cmdDetect.Flags().DurationVar(&detectTimeout, "timeout", 2*time.Second, "Detection timeout")
	cmdDetect.Flags().StringSliceVar(&detectIgnore, "ignore", nil, "Paths to skip")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	opts := detection.DefaultOptions()
	opts.Timeout = detectTimeout
	opts.IgnorePaths = detectIgnore
	if detectSafe {
		opts.Mode = detection.Safe
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	devices, err := detection.DetectAllContext(ctx, &opts)
	if errors.Is(err, detection.ErrNoDevicesFound) || (err == nil && len(devices) == 0) {
		_, _ = fmt.Println("No CAN devices found")
		return nil
	}
	if err != nil && len(devices) == 0 {
		return err
	}

	_, _ = fmt.Printf("%-10s %-20s %-8s %s\n", "TRANSPORT", "PATH", "CONF", "NAME")
	for _, d := range devices {
		_, _ = fmt.Printf("%-10s %-20s %-8s %s\n", d.Transport, d.Path, d.Confidence, d.Name)
	}
	if err != nil {
		_, _ = fmt.Printf("\nsome detectors failed: %v\n", err)
	}
	return nil
}
