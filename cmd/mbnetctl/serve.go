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

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/polling"
)

var (
	cmdServe = &cobra.Command{
		Use:   "serve",
		Short: "Run a slave answering ping and RAM requests",
		Long:  `Runs a slave node with an in-memory RAM image until interrupted. Masters can ping it and read or write its RAM.`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	rootCmd.AddCommand(cmdServe)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// a serving node must not scan the bus on its own
	disc := mbnet.DefaultDiscoveryConfig()
	disc.Enabled = false
	s, err := openSession(-1, mbnet.WithDiscovery(disc))
	if err != nil {
		return err
	}
	defer s.Close()

	responder := mbnet.NewMemoryResponder(s.schema.Responder.Pong(), s.schema.Responder.MemorySize())

	config := polling.DefaultConfig()
	config.Logger = s.log
	runner, err := polling.NewRunner(s.node, responder.Handle, config)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	runner.OnError = func(err error) {
		if errors.Is(err, mbnet.ErrTransportClosed) {
			cancel()
		}
	}

	if s.metrics != nil {
		s.metrics.AddRunner(s.name, runner)
	}

	if err := runner.Start(ctx); err != nil {
		return err
	}
	s.log.Info().
		Str("node", mbnet.NodeID(s.schema.ID).String()).
		Str("type", s.schema.Responder.Pong().Type()).
		Int("ram", s.schema.Responder.MemorySize()).
		Msg("serving")

	<-ctx.Done()
	if err := runner.Stop(); err != nil {
		return fmt.Errorf("failed to stop runner: %w", err)
	}

	m := runner.GetMetrics()
	_, _ = fmt.Printf("\nhandled %d requests in %d cycles, %d errors\n",
		s.node.GetMetrics().RequestsHandled, m.Cycles, m.Errors)
	if err := cmd.Context().Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !s.node.Transport().IsConnected() {
		return mbnet.ErrTransportClosed
	}
	return nil
}
