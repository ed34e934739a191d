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

package config

// Filament controls what the service does after a tag update.
type Filament struct {
	// AutoApplyProfile emits heater targets from the tag after every
	// changed update.
	AutoApplyProfile bool `toml:"auto_apply_profile"`
	// UpdateRemaining forwards manual remaining_filament changes to the
	// reader that supplied the tag.
	UpdateRemaining bool `toml:"update_remaining"`
}

func (c *Instance) AutoApplyProfile() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Filament.AutoApplyProfile
}

func (c *Instance) SetAutoApplyProfile(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Filament.AutoApplyProfile = enabled
}

func (c *Instance) UpdateRemaining() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Filament.UpdateRemaining
}

func (c *Instance) SetUpdateRemaining(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Filament.UpdateRemaining = enabled
}
