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
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/config"
	"github.com/ZaparooProject/go-mbnet/detection"
	mbprom "github.com/ZaparooProject/go-mbnet/metrics/prometheus"
)

// session is an open node plus the logging and metrics around it
type session struct {
	log     types.RootLogger
	node    *mbnet.Node
	schema  *config.NodeSchema
	metrics *mbprom.Metrics
	server  *http.Server
	name    string
}

// loadSchema reads the node block selected by --config and --name and
// applies the command line overrides. defaultID is used when neither the
// file nor --node set an id.
func loadSchema(defaultID int) (*config.Schema, *config.NodeSchema, error) {
	file := &config.Schema{}
	ns := &config.NodeSchema{Name: "mbnetctl", ID: defaultID}

	if flagConfig != "" {
		var err error
		file, err = config.Load(flagConfig)
		if err != nil {
			return nil, nil, err
		}
		ns, err = file.Lookup(flagName)
		if err != nil {
			return nil, nil, err
		}
	}

	if ns.Transport == nil {
		ns.Transport = &config.TransportSchema{}
	}
	if flagNode >= 0 {
		ns.ID = flagNode
	}
	if flagTransport != "" {
		ns.Transport.Type = flagTransport
	}
	if flagDevice != "" {
		ns.Transport.Device = flagDevice
	}
	if flagBitrate > 0 {
		ns.Transport.Bitrate = flagBitrate
	}
	if ns.ID < 0 {
		return nil, nil, errors.New("no node id: pass --node or set id in the configuration file")
	}
	return file, ns, nil
}

func newLogger(file *config.Schema) types.RootLogger {
	log := logging.New(logging.Zerolog, "mbnetctl", os.Stderr)

	level := types.InfoLevel
	if file.Log != nil {
		switch strings.ToLower(file.Log.Level) {
		case "trace":
			level = types.TraceLevel
		case "debug":
			level = types.DebugLevel
		case "warn":
			level = types.WarnLevel
		case "error":
			level = types.ErrorLevel
		}
	}
	if flagDebug {
		level = types.DebugLevel
	}
	if flagTrace {
		level = types.TraceLevel
	}
	log.SetLevel(level)
	return log
}

func openSession(defaultID int, extra ...mbnet.Option) (*session, error) {
	file, ns, err := loadSchema(defaultID)
	if err != nil {
		return nil, err
	}
	log := newLogger(file)

	opts, err := ns.NodeOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, mbnet.WithLogger(log))
	opts = append(opts, extra...)

	connectOpts := []mbnet.ConnectOption{mbnet.WithNodeOptions(opts...)}
	if ns.Transport.Device == "" {
		detectOpts := detection.DefaultOptions()
		connectOpts = append(connectOpts,
			mbnet.WithAutoDetection(&detectOpts),
			mbnet.WithTransportFromDeviceFactory(tracing(log, transportFromDevice(ns.Transport))))
		log.Info().Msg("auto-detecting CAN interfaces")
	} else {
		connectOpts = append(connectOpts,
			mbnet.WithTransportFactory(func(path string) (mbnet.Transport, error) {
				t, err := transportFactory(ns.Transport)(path)
				if err != nil || !flagTrace {
					return t, err
				}
				return mbnet.NewLoggedTransport(t, path, log), nil
			}))
	}

	node, err := mbnet.Connect(ns.Transport.Device, connectOpts...)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("node", mbnet.NodeID(ns.ID).String()).
		Str("transport", string(node.Transport().Type())).
		Msg("node ready")

	s := &session{log: log, node: node, schema: ns, name: ns.Name}
	if err := s.startMetrics(file); err != nil {
		_ = node.Close()
		return nil, err
	}
	return s, nil
}

// tracing wraps detected transports in a LoggedTransport when --trace is
// set
func tracing(log types.Logger, factory mbnet.TransportFromDeviceFactory) mbnet.TransportFromDeviceFactory {
	return func(device detection.DeviceInfo) (mbnet.Transport, error) {
		log.Info().Str("device", device.String()).Msg("using detected device")
		t, err := factory(device)
		if err != nil || !flagTrace {
			return t, err
		}
		return mbnet.NewLoggedTransport(t, device.Path, log), nil
	}
}

func (s *session) startMetrics(file *config.Schema) error {
	listen := flagMetrics
	mc := mbprom.DefaultConfig()
	if file.Metrics != nil {
		if listen == "" {
			listen = file.Metrics.Listen
		}
		if file.Metrics.Namespace != "" {
			mc.Namespace = file.Metrics.Namespace
		}
	}
	if listen == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	s.metrics = mbprom.New(reg, mc)
	s.metrics.AddNode(s.name, s.node)

	// Add the default go metrics
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          reg,
		},
	))
	s.server = &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Str("listen", listen).Msg("metrics server failed")
		}
	}()
	s.log.Info().Str("listen", listen).Msg("serving prometheus metrics")
	return nil
}

func (s *session) Close() {
	if s.metrics != nil {
		s.metrics.Shutdown()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.server.Shutdown(ctx)
		cancel()
	}
	if err := s.node.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close transport")
	}
}

// parseNodeID accepts decimal or 0x prefixed hex
func parseNodeID(arg string) (mbnet.NodeID, error) {
	v, err := parseUint(arg, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", arg, err)
	}
	id := mbnet.NodeID(v)
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return id, nil
}
