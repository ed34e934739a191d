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

const DefaultHistoryRetentionDays = 30

type History struct {
	Enabled       *bool `toml:"enabled,omitempty"`
	RetentionDays int   `toml:"retention_days,omitempty"`
}

// HistoryEnabled defaults to true.
func (c *Instance) HistoryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.History.Enabled == nil {
		return true
	}
	return *c.vals.History.Enabled
}

func (c *Instance) SetHistoryEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.History.Enabled = &enabled
}

// HistoryRetentionDays returns how long history entries are kept, 0
// keeps them forever.
func (c *Instance) HistoryRetentionDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.History.RetentionDays < 0 {
		return 0
	}
	return c.vals.History.RetentionDays
}
