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

// Package prometheus exports node and runner counters as prometheus gauges.
// Each registered source is sampled on its own ticker.
package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZaparooProject/go-mbnet"
	"github.com/ZaparooProject/go-mbnet/polling"
)

type MetricsConfig struct {
	Namespace     string
	SubNode       string
	SubRunner     string
	SubDiscovery  string
	TickNode      time.Duration
	TickRunner    time.Duration
	TickDiscovery time.Duration
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:     "mbnet",
		SubNode:       "node",
		SubRunner:     "runner",
		SubDiscovery:  "discovery",
		TickNode:      100 * time.Millisecond,
		TickRunner:    100 * time.Millisecond,
		TickDiscovery: time.Second,
	}
}

type Metrics struct {
	reg       prometheus.Registerer
	lock      sync.Mutex
	config    *MetricsConfig
	cancelfns map[string]context.CancelFunc

	// node
	nodeFramesSent      *prometheus.GaugeVec
	nodeMailboxBusy     *prometheus.GaugeVec
	nodeRequestsSent    *prometheus.GaugeVec
	nodeResends         *prometheus.GaugeVec
	nodeAcksReceived    *prometheus.GaugeVec
	nodeAcksDiscarded   *prometheus.GaugeVec
	nodeTimeouts        *prometheus.GaugeVec
	nodeRequestsHandled *prometheus.GaugeVec
	nodeLockRejections  *prometheus.GaugeVec
	nodeAcksSent        *prometheus.GaugeVec
	nodeAckErrorsSent   *prometheus.GaugeVec
	nodeCallbackErrors  *prometheus.GaugeVec
	nodeRequestsDropped *prometheus.GaugeVec

	// discovery
	discoverySlavesFound  *prometheus.GaugeVec
	discoverySlavesAbsent *prometheus.GaugeVec
	discoveryPending      *prometheus.GaugeVec
	discoveryComplete     *prometheus.GaugeVec

	// runner
	runnerCycles     *prometheus.GaugeVec
	runnerErrors     *prometheus.GaugeVec
	runnerLatencyUS  *prometheus.GaugeVec
	runnerIntervalUS *prometheus.GaugeVec
	runnerRunning    *prometheus.GaugeVec
}

// New creates the gauge vectors and registers them with reg. A nil config
// uses DefaultConfig.
func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	labels := []string{"node"}
	gauge := func(subsystem, name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}

	met := &Metrics{
		reg:       reg,
		config:    config,
		cancelfns: make(map[string]context.CancelFunc),

		nodeFramesSent:      gauge(config.SubNode, "frames_sent", "Frames handed to the transport"),
		nodeMailboxBusy:     gauge(config.SubNode, "mailbox_busy", "Transmit attempts that found all mailboxes busy"),
		nodeRequestsSent:    gauge(config.SubNode, "requests_sent", "Requests sent by the master"),
		nodeResends:         gauge(config.SubNode, "resends", "Requests resent after a retry acknowledge"),
		nodeAcksReceived:    gauge(config.SubNode, "acks_received", "Acknowledges matched to a pending request"),
		nodeAcksDiscarded:   gauge(config.SubNode, "acks_discarded", "Acknowledges from the wrong slave or stale"),
		nodeTimeouts:        gauge(config.SubNode, "timeouts", "Acknowledge waits that ran out of polls"),
		nodeRequestsHandled: gauge(config.SubNode, "requests_handled", "Requests dispatched by the slave"),
		nodeLockRejections:  gauge(config.SubNode, "lock_rejections", "Requests refused because another master holds the lock"),
		nodeAcksSent:        gauge(config.SubNode, "acks_sent", "Acknowledges sent by the slave"),
		nodeAckErrorsSent:   gauge(config.SubNode, "ack_errors_sent", "Error acknowledges sent by the slave"),
		nodeCallbackErrors:  gauge(config.SubNode, "callback_errors", "Request callbacks that returned an error"),
		nodeRequestsDropped: gauge(config.SubNode, "requests_dropped", "Requests dropped for lack of a callback"),

		discoverySlavesFound:  gauge(config.SubDiscovery, "slaves_found", "Slaves that answered a discovery ping"),
		discoverySlavesAbsent: gauge(config.SubDiscovery, "slaves_absent", "Slaves given up on after the retry limit"),
		discoveryPending:      gauge(config.SubDiscovery, "pending", "Discovery targets not yet resolved"),
		discoveryComplete:     gauge(config.SubDiscovery, "complete", "1 while no discovery target is pending"),

		runnerCycles:     gauge(config.SubRunner, "cycles", "Handler cycles run"),
		runnerErrors:     gauge(config.SubRunner, "errors", "Handler cycles that failed"),
		runnerLatencyUS:  gauge(config.SubRunner, "latency_us", "Duration of the last handler cycle"),
		runnerIntervalUS: gauge(config.SubRunner, "interval_us", "Current cycle interval"),
		runnerRunning:    gauge(config.SubRunner, "running", "1 while the runner loop is active"),
	}

	reg.MustRegister(met.nodeFramesSent, met.nodeMailboxBusy, met.nodeRequestsSent, met.nodeResends,
		met.nodeAcksReceived, met.nodeAcksDiscarded, met.nodeTimeouts, met.nodeRequestsHandled,
		met.nodeLockRejections, met.nodeAcksSent, met.nodeAckErrorsSent, met.nodeCallbackErrors,
		met.nodeRequestsDropped)

	reg.MustRegister(met.discoverySlavesFound, met.discoverySlavesAbsent, met.discoveryPending, met.discoveryComplete)

	reg.MustRegister(met.runnerCycles, met.runnerErrors, met.runnerLatencyUS, met.runnerIntervalUS, met.runnerRunning)

	return met
}

func key(subsystem, name string) string {
	return fmt.Sprintf("%s_%s", subsystem, name)
}

func (m *Metrics) remove(subsystem string, name string) {
	m.lock.Lock()
	cancelfn, ok := m.cancelfns[key(subsystem, name)]
	if ok {
		cancelfn()
		delete(m.cancelfns, key(subsystem, name))
	}
	m.lock.Unlock()
}

func (m *Metrics) add(subsystem string, name string, interval time.Duration, tickfn func()) {
	ctx, cancelfn := context.WithCancel(context.Background())
	m.lock.Lock()
	if old, ok := m.cancelfns[key(subsystem, name)]; ok {
		old()
	}
	m.cancelfns[key(subsystem, name)] = cancelfn
	m.lock.Unlock()

	// sample once so the series exist before the first tick
	tickfn()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickfn()
			}
		}
	}()
}

// Shutdown stops every sampler
func (m *Metrics) Shutdown() {
	m.lock.Lock()
	for _, cancelfn := range m.cancelfns {
		cancelfn()
	}
	m.cancelfns = make(map[string]context.CancelFunc)
	m.lock.Unlock()
}

// AddNode samples the counters of n. Node.GetMetrics is safe to call from
// the sampler goroutine.
func (m *Metrics) AddNode(name string, n *mbnet.Node) {
	m.add(m.config.SubNode, name, m.config.TickNode, func() {
		met := n.GetMetrics()
		m.nodeFramesSent.WithLabelValues(name).Set(float64(met.FramesSent))
		m.nodeMailboxBusy.WithLabelValues(name).Set(float64(met.MailboxBusy))
		m.nodeRequestsSent.WithLabelValues(name).Set(float64(met.RequestsSent))
		m.nodeResends.WithLabelValues(name).Set(float64(met.Resends))
		m.nodeAcksReceived.WithLabelValues(name).Set(float64(met.AcksReceived))
		m.nodeAcksDiscarded.WithLabelValues(name).Set(float64(met.AcksDiscarded))
		m.nodeTimeouts.WithLabelValues(name).Set(float64(met.Timeouts))
		m.nodeRequestsHandled.WithLabelValues(name).Set(float64(met.RequestsHandled))
		m.nodeLockRejections.WithLabelValues(name).Set(float64(met.LockRejections))
		m.nodeAcksSent.WithLabelValues(name).Set(float64(met.AcksSent))
		m.nodeAckErrorsSent.WithLabelValues(name).Set(float64(met.AckErrorsSent))
		m.nodeCallbackErrors.WithLabelValues(name).Set(float64(met.CallbackErrors))
		m.nodeRequestsDropped.WithLabelValues(name).Set(float64(met.RequestsDropped))
	})

	m.add(m.config.SubDiscovery, name, m.config.TickDiscovery, func() {
		met := n.GetMetrics()
		m.discoverySlavesFound.WithLabelValues(name).Set(float64(met.SlavesFound))
		m.discoverySlavesAbsent.WithLabelValues(name).Set(float64(met.SlavesAbsent))
		m.discoveryPending.WithLabelValues(name).Set(float64(met.DiscoveryPending))
		complete := 0.0
		if met.DiscoveryPending == 0 {
			complete = 1
		}
		m.discoveryComplete.WithLabelValues(name).Set(complete)
	})
}

func (m *Metrics) RemoveNode(name string) {
	m.remove(m.config.SubNode, name)
	m.remove(m.config.SubDiscovery, name)
}

func (m *Metrics) AddRunner(name string, r *polling.Runner) {
	m.add(m.config.SubRunner, name, m.config.TickRunner, func() {
		met := r.GetMetrics()
		m.runnerCycles.WithLabelValues(name).Set(float64(met.Cycles))
		m.runnerErrors.WithLabelValues(name).Set(float64(met.Errors))
		m.runnerLatencyUS.WithLabelValues(name).Set(float64(met.LastLatency.Microseconds()))
		m.runnerIntervalUS.WithLabelValues(name).Set(float64(met.Interval.Microseconds()))
		running := 0.0
		if r.IsRunning() {
			running = 1
		}
		m.runnerRunning.WithLabelValues(name).Set(running)
	})
}

func (m *Metrics) RemoveRunner(name string) {
	m.remove(m.config.SubRunner, name)
}
