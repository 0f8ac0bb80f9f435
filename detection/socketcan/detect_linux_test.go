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

//go:build linux

package socketcan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mbnet/detection"
)

func writeIface(t *testing.T, root, name, kind, flags string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte(kind+"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flags"), []byte(flags+"\n"), 0o600))
}

func TestDetect_SysfsInterfaces(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeIface(t, root, "eth0", "1", "0x1003")
	writeIface(t, root, "can0", "280", "0x1")
	writeIface(t, root, "can1", "280", "0x0")
	writeIface(t, root, "vcan0", "280", "0xc1")
	writeIface(t, root, "lo", "772", "0x9")

	d := &detector{sysfsRoot: root}
	opts := detection.DefaultOptions()
	devices, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "can0", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "up", devices[0].Metadata["state"])

	assert.Equal(t, "can1", devices[1].Path)
	assert.Equal(t, detection.Medium, devices[1].Confidence)
	assert.Equal(t, "down", devices[1].Metadata["state"])

	assert.Equal(t, "vcan0", devices[2].Path)
	assert.Equal(t, detection.Low, devices[2].Confidence)
	assert.Equal(t, "true", devices[2].Metadata["virtual"])
}

func TestDetect_IgnoredAndMissing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeIface(t, root, "can0", "280", "0x1")

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"can0"}
	_, err := (&detector{sysfsRoot: root}).Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)

	_, err = (&detector{sysfsRoot: filepath.Join(root, "missing")}).Detect(context.Background(), &opts)
	require.Error(t, err)
}
