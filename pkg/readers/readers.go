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

package readers

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
)

type Capability string

const (
	// CapabilityRefresh readers can re-read the present tag on request.
	CapabilityRefresh Capability = "refresh"
	// CapabilityUpdateRemaining readers accept a new remaining filament
	// weight for the present spool.
	CapabilityUpdateRemaining Capability = "update_remaining"
)

var (
	ErrUnsupported  = errors.New("operation not supported by reader")
	ErrInvalidID    = errors.New("invalid reader id")
	ErrNotConnected = errors.New("reader not connected")
)

type DriverMetadata struct {
	ID          string
	Description string
}

// Scan is one report from a reader. Payload carries the tag bytes, or hex
// text when the reader receives text. Fields are manual overrides keyed by
// upper-case token. A Scan with nil Payload, no Fields and no Error means
// the tag was removed.
type Scan struct {
	Error       error
	Fields      map[string]any
	Source      string
	Payload     []byte
	ReaderError bool
}

// Removed reports whether the scan signals that the tag left the reader.
func (s Scan) Removed() bool {
	return s.Error == nil && s.Payload == nil && len(s.Fields) == 0
}

type Reader interface {
	// Metadata returns static information about the driver.
	Metadata() DriverMetadata
	// IDs returns the driver names this reader accepts in a connect entry.
	IDs() []string
	// Open connects to the device and starts sending scans to the channel.
	Open(config.ReadersConnect, chan<- Scan) error
	// Close stops the reader and releases the device.
	Close() error
	// Device returns the device connection string.
	Device() string
	// Connected returns true if the device is connected and active.
	Connected() bool
	// Info returns a human readable description of the device.
	Info() string
	// Capabilities returns the optional operations the reader supports.
	Capabilities() []Capability
}

// Refresher is implemented by readers with CapabilityRefresh.
type Refresher interface {
	Refresh() error
}

// RemainingUpdater is implemented by readers with
// CapabilityUpdateRemaining.
type RemainingUpdater interface {
	UpdateRemaining(grams float64) error
}

// NormalizeDriverID strips underscores so "simple_serial" and
// "simpleserial" name the same driver.
func NormalizeDriverID(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), "_", "")
}

// CheckDriver returns ErrInvalidID when the connect entry isn't for r.
func CheckDriver(r Reader, device config.ReadersConnect) error {
	want := NormalizeDriverID(device.Driver)
	if !slices.ContainsFunc(r.IDs(), func(id string) bool {
		return NormalizeDriverID(id) == want
	}) {
		return fmt.Errorf("%w: %s", ErrInvalidID, device.Driver)
	}
	return nil
}
