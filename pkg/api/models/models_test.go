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
	"encoding/json"
	"testing"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagResponse_FlattensState(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resp := TagResponse{
		UpdatedAt: &ts,
		Source:    "file:/tmp/spool.bin",
	}
	resp.BaseMaterial = "PLA"
	resp.RemainingFilament = 812.5

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "PLA", out["base_material"])
	assert.InDelta(t, 812.5, out["remaining_filament"], 0.0001)
	assert.Equal(t, "2026-03-01T12:00:00Z", out["updatedAt"])
	assert.Equal(t, "file:/tmp/spool.bin", out["source"])
	assert.NotContains(t, out, "Record")
	assert.NotContains(t, out, "State")
}

func TestTagResponse_NeverUpdated(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(TagResponse{State: opentag3d.State{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"updatedAt":null`)
	assert.NotContains(t, string(data), `"source"`)
}

func TestResponseObject_ErrorOmitted(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ResponseObject{JSONRPC: "2.0", Result: nil})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":null`)
	assert.NotContains(t, string(data), `"error"`)
}
