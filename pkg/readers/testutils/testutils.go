// OpenTag3D Core
// Copyright (c) 2026 The OpenTag3D Core Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of OpenTag3D Core.
//
// OpenTag3D Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// OpenTag3D Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with OpenTag3D Core.  If not, see <http://www.gnu.org/licenses/>.

// Package testutils provides common testing utilities for reader tests.
package testutils

import (
	"os"
	"testing"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/stretchr/testify/require"
)

// CreateTestScanChannel creates a buffered channel for reader scans with capacity of 10.
func CreateTestScanChannel(_ *testing.T) chan readers.Scan {
	return make(chan readers.Scan, 10)
}

// AssertScanReceived waits for a scan to be received on the channel within the timeout.
func AssertScanReceived(t *testing.T, ch chan readers.Scan, timeout time.Duration) readers.Scan {
	t.Helper()
	select {
	case scan := <-ch:
		return scan
	case <-time.After(timeout):
		require.Fail(t, "expected scan to be received within timeout", "timeout: %v", timeout)
		return readers.Scan{}
	}
}

// AssertNoScan fails the test if a scan arrives within the timeout.
func AssertNoScan(t *testing.T, ch chan readers.Scan, timeout time.Duration) {
	t.Helper()
	select {
	case scan := <-ch:
		require.Fail(t, "unexpected scan received",
			"scan: source=%s, payload=%x, readerError=%v",
			scan.Source, scan.Payload, scan.ReaderError)
	case <-time.After(timeout):
	}
}

// CreateTempDevicePath creates an empty file standing in for a serial
// device node.
func CreateTempDevicePath(t *testing.T) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "device-test-*")
	require.NoError(t, err)
	path := f.Name()
	require.NoError(t, f.Close())
	return path
}
