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

import "slices"

type CapabilityProvider interface {
	Capabilities() []Capability
}

// HasCapability checks if a reader has a specific capability.
func HasCapability(r CapabilityProvider, capability Capability) bool {
	return slices.Contains(r.Capabilities(), capability)
}

// Refresh asks r to re-read its tag. It returns ErrUnsupported when r is
// nil, lacks the capability or doesn't implement Refresher.
func Refresh(r Reader) error {
	if r == nil || !HasCapability(r, CapabilityRefresh) {
		return ErrUnsupported
	}
	rf, ok := r.(Refresher)
	if !ok {
		return ErrUnsupported
	}
	if !r.Connected() {
		return ErrNotConnected
	}
	return rf.Refresh()
}

// UpdateRemaining forwards a remaining filament weight to r, with the same
// checks as Refresh.
func UpdateRemaining(r Reader, grams float64) error {
	if r == nil || !HasCapability(r, CapabilityUpdateRemaining) {
		return ErrUnsupported
	}
	ru, ok := r.(RemainingUpdater)
	if !ok {
		return ErrUnsupported
	}
	if !r.Connected() {
		return ErrNotConnected
	}
	return ru.UpdateRemaining(grams)
}

// CapabilityNames converts capabilities to strings for API output.
func CapabilityNames(cs []Capability) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}
