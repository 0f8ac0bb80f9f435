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

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-mbnet"
)

var (
	cmdRead = &cobra.Command{
		Use:   "read <slave> <addr> <len>",
		Short: "Read up to eight bytes of slave RAM",
		Long:  ``,
		Args:  cobra.ExactArgs(3),
		RunE:  runRead,
	}

	cmdWrite = &cobra.Command{
		Use:   "write <slave> <addr> <hex>...",
		Short: "Write up to eight bytes of slave RAM",
		Long:  ``,
		Args:  cobra.MinimumNArgs(3),
		RunE:  runWrite,
	}
)

var ramLock bool

func init() {
	rootCmd.AddCommand(cmdRead)
	rootCmd.AddCommand(cmdWrite)
	for _, c := range []*cobra.Command{cmdRead, cmdWrite} {
		c.Flags().BoolVarP(&ramLock, "lock", "l", false, "Lock the slave around the access")
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	slave, err := parseNodeID(args[0])
	if err != nil {
		return err
	}
	addr, err := parseUint(args[1], 16)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[1], err)
	}
	length, err := parseUint(args[2], 8)
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", args[2], err)
	}

	s, err := openSession(0)
	if err != nil {
		return err
	}
	defer s.Close()

	return withLock(cmd, s, slave, func() error {
		data, err := s.node.ReadRAM(cmd.Context(), slave, uint16(addr), uint8(length))
		if err != nil {
			return err
		}
		_, _ = fmt.Printf("%04X: %s\n", addr, hexdump(data))
		return nil
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	slave, err := parseNodeID(args[0])
	if err != nil {
		return err
	}
	addr, err := parseUint(args[1], 16)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[1], err)
	}
	data, err := parseHexData(args[2:])
	if err != nil {
		return err
	}

	s, err := openSession(0)
	if err != nil {
		return err
	}
	defer s.Close()

	return withLock(cmd, s, slave, func() error {
		if err := s.node.WriteRAM(cmd.Context(), slave, uint16(addr), data); err != nil {
			return err
		}
		_, _ = fmt.Printf("%04X: wrote %d bytes\n", addr, len(data))
		return nil
	})
}

// withLock runs fn, bracketed by Lock and Unlock of slave when --lock is
// set
func withLock(cmd *cobra.Command, s *session, slave mbnet.NodeID, fn func() error) error {
	if !ramLock {
		return fn()
	}
	ctx := cmd.Context()
	if err := s.node.Lock(ctx, slave); err != nil {
		return fmt.Errorf("failed to lock %s: %w", slave, err)
	}
	defer func() {
		if err := s.node.Unlock(ctx, slave); err != nil {
			s.log.Warn().Err(err).Str("slave", slave.String()).Msg("failed to unlock")
		}
	}()
	return fn()
}
