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

package models

import (
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
)

// TagResponse is the session snapshot. UpdatedAt is nil until the first
// successful merge.
type TagResponse struct {
	UpdatedAt *time.Time `json:"updatedAt"`
	opentag3d.State
	Source string `json:"source,omitempty"`
}

type DecodeResponse struct {
	Record  *opentag3d.Record        `json:"record,omitempty"`
	Unknown *opentag3d.UnknownFormat `json:"unknown,omitempty"`
	Valid   bool                     `json:"valid"`
}

type HistoryResponseEntry struct {
	Time      time.Time `json:"time"`
	Source    string    `json:"source"`
	TagFormat string    `json:"tagFormat"`
	Material  string    `json:"material"`
	Color     string    `json:"color"`
	Payload   string    `json:"payload"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

type HistoryResponse struct {
	Entries []HistoryResponseEntry `json:"entries"`
}

type VersionResponse struct {
	Version  string `json:"version"`
	DeviceID string `json:"deviceId"`
}

type ReadersResponse struct {
	Readers []ReaderParams `json:"readers"`
}
