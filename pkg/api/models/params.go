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

// TagSetParams merges a payload and/or manual fields into the session,
// the same inputs a reader scan carries.
type TagSetParams struct {
	Payload *string        `json:"payload" validate:"omitempty,hexpayload"`
	Fields  map[string]any `json:"fields"`
	Source  string         `json:"source"`
}

type TagDecodeParams struct {
	Payload string `json:"payload" validate:"required,hexpayload"`
}

type TagRemainingParams struct {
	Remaining *float64 `json:"remaining" validate:"required,gte=0"`
}

type TagHistoryParams struct {
	Limit *int `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// FilamentApplyParams asks the printer host to apply the filament
// profile. A zero temperature means the tag gave no target.
type FilamentApplyParams struct {
	Material   string  `json:"material"`
	NozzleTemp float64 `json:"nozzleTemp"`
	BedTemp    float64 `json:"bedTemp"`
}

type ReaderParams struct {
	ID           string   `json:"id"`
	Driver       string   `json:"driver"`
	Info         string   `json:"info"`
	Capabilities []string `json:"capabilities"`
}
