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

// Package detection finds CAN adapters that a node can be attached to.
//
// Detectors for each adapter family register themselves on import:
//
//	import _ "github.com/ZaparooProject/go-mbnet/detection/slcan"
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no CAN adapters found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrDetectionTimeout    = errors.New("detection timed out")
)

// Mode controls how intrusive detection may be
type Mode int

const (
	// Passive only enumerates device nodes
	Passive Mode = iota
	// Safe may open a device to query its state without transmitting on
	// the bus
	Safe
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Confidence ranks how likely a candidate is a usable CAN adapter
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// Options configures a detection run
type Options struct {
	// IgnorePaths are device paths never reported
	IgnorePaths []string
	// Blocklist holds VID:PID pairs of USB adapters never reported
	Blocklist []string
	// Transports restricts detection to the named detectors. Empty
	// runs every registered detector.
	Transports []string
	// Timeout bounds a whole DetectAll run
	Timeout time.Duration
	Mode    Mode
}

// DefaultOptions returns passive detection with a two second timeout
func DefaultOptions() Options {
	return Options{
		Mode:      Passive,
		Timeout:   2 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// DeviceInfo describes a detected adapter
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// String returns a short description of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s:%s (%s, %s confidence)", d.Transport, d.Path, d.Name, d.Confidence)
}

// Detector enumerates adapters of one transport family
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector makes d available to DetectAll. A detector registered
// under an existing transport name replaces the previous one.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Detectors returns the registered transport names in sorted order
func Detectors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectAll runs every selected detector with opts.Timeout as deadline
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return DetectAllContext(ctx, opts)
}

// DetectAllContext runs every selected detector. Results are ordered by
// confidence, highest first. Detector failures are only reported when no
// detector produced a device.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	var (
		devices []DeviceInfo
		errs    []error
	)
	for _, d := range selected(opts.Transports) {
		if ctx.Err() != nil {
			return devices, ErrDetectionTimeout
		}
		found, err := d.Detect(ctx, opts)
		if err != nil {
			if !errors.Is(err, ErrNoDevicesFound) && !errors.Is(err, ErrUnsupportedPlatform) {
				errs = append(errs, fmt.Errorf("%s: %w", d.Transport(), err))
			}
			continue
		}
		for _, dev := range found {
			if filtered(dev, opts) {
				continue
			}
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func selected(transports []string) []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(transports) == 0 {
		names := make([]string, 0, len(registry))
		for name := range registry {
			names = append(names, name)
		}
		sort.Strings(names)
		transports = names
	}

	out := make([]Detector, 0, len(transports))
	for _, name := range transports {
		if d, ok := registry[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

func filtered(dev DeviceInfo, opts *Options) bool {
	if IsPathIgnored(dev.Path, opts.IgnorePaths) {
		return true
	}
	if vidpid := dev.Metadata["vidpid"]; vidpid != "" && IsBlocked(vidpid, opts.Blocklist) {
		return true
	}
	return false
}
