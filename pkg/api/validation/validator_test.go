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

//nolint:revive // custom validation tags are unknown to revive
package validation

import (
	"encoding/json"
	"testing"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHexPayload(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Payload string `validate:"hexpayload"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "empty is valid", value: ""},
		{name: "plain", value: "4F540BB8"},
		{name: "spaced lowercase", value: "4f 54 0b b8"},
		{name: "colon separated", value: "4F:54:0B"},
		{name: "odd digits", value: "4F5", wantError: true},
		{name: "no digits", value: "zz zz", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Payload: tt.value})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "payload must be hex text")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRGBA(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Color string `validate:"rgba"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "empty clears", value: ""},
		{name: "six digits", value: "#FF8800"},
		{name: "eight digits no hash", value: "ff8800cc"},
		{name: "five digits", value: "#FF880", wantError: true},
		{name: "not hex", value: "#GG8800", wantError: true},
		{name: "name", value: "red", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Color: tt.value})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "hex color")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateTagSetParams(t *testing.T) {
	t.Parallel()

	payload := "4F 54"
	badPayload := "4F5"

	tests := []struct {
		params    models.TagSetParams
		name      string
		wantError string
	}{
		{name: "empty", params: models.TagSetParams{}},
		{name: "payload only", params: models.TagSetParams{Payload: &payload}},
		{
			name:      "bad payload",
			params:    models.TagSetParams{Payload: &badPayload},
			wantError: "payload must be hex text",
		},
		{
			name: "manual fields",
			params: models.TagSetParams{Fields: map[string]any{
				"MATERIAL":     "PLA+",
				"REMAINING":    500,
				"COLOR_1_RGBA": "#112233",
			}},
		},
		{
			name:      "bad color",
			params:    models.TagSetParams{Fields: map[string]any{"COLOR_2_RGBA": "blue"}},
			wantError: "color_2_rgba must be a 6 or 8 digit hex color",
		},
		{
			name:      "numeric color",
			params:    models.TagSetParams{Fields: map[string]any{"color_3_rgba": 12}},
			wantError: "color_3_rgba",
		},
		{
			name:   "unknown tokens ignored",
			params: models.TagSetParams{Fields: map[string]any{"SPOOLMAN_ID": "x"}},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&tt.params)
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateAndUnmarshal(t *testing.T) {
	t.Parallel()

	var p models.TagRemainingParams
	require.ErrorIs(t, ValidateAndUnmarshal(nil, &p), ErrMissingParams)
	require.ErrorIs(t, ValidateAndUnmarshal(json.RawMessage(`{"remaining":`), &p), ErrInvalidParams)

	err := ValidateAndUnmarshal(json.RawMessage(`{}`), &p)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "remaining is required", verr.Error())
	assert.Equal(t, "required", verr.Fields[0].Tag)

	err = ValidateAndUnmarshal(json.RawMessage(`{"remaining":-1}`), &p)
	require.ErrorContains(t, err, "remaining must be greater than or equal to 0")

	require.NoError(t, ValidateAndUnmarshal(json.RawMessage(`{"remaining":250.5}`), &p))
	assert.InDelta(t, 250.5, *p.Remaining, 0.0001)
}

func TestValidateHistoryLimit(t *testing.T) {
	t.Parallel()

	var p models.TagHistoryParams
	require.NoError(t, ValidateAndUnmarshal(json.RawMessage(`{}`), &p))
	assert.Nil(t, p.Limit)

	err := ValidateAndUnmarshal(json.RawMessage(`{"limit":0}`), &p)
	require.ErrorContains(t, err, "limit must be at least 1")
}
