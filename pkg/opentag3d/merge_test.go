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

package opentag3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manual(t *testing.T, in map[string]any) Update {
	t.Helper()
	u, err := ParseManual(in)
	require.NoError(t, err)
	return u
}

func TestMerge_BaseMaterialDerivesFilamentMaterial(t *testing.T) {
	t.Parallel()

	got, err := Merge(State{}, nil, manual(t, map[string]any{"BASE_MATERIAL": "PLA"}))
	require.NoError(t, err)
	assert.Equal(t, "PLA", got.FilamentMaterial)

	got, err = Merge(State{}, nil, manual(t, map[string]any{
		"BASE_MATERIAL":      "PLA",
		"MATERIAL_MODIFIERS": "Matte",
	}))
	require.NoError(t, err)
	assert.Equal(t, "PLA Matte", got.FilamentMaterial)
}

func TestMerge_ManualWinsOverDerivation(t *testing.T) {
	t.Parallel()

	got, err := Merge(State{}, nil, manual(t, map[string]any{
		"MATERIAL":      "CustomBlend",
		"BASE_MATERIAL": "PLA",
	}))
	require.NoError(t, err)
	assert.Equal(t, "CustomBlend", got.FilamentMaterial)
	assert.Equal(t, "PLA", got.BaseMaterial)
}

func TestMerge_ManualWinsOverDecoded(t *testing.T) {
	t.Parallel()

	res, err := Decode(plaFixture.build())
	require.NoError(t, err)

	got, err := Merge(State{}, &res, manual(t, map[string]any{
		"MATERIAL":    "CustomBlend",
		"NOZZLE_TEMP": "205",
	}))
	require.NoError(t, err)
	assert.Equal(t, "CustomBlend", got.FilamentMaterial)
	assert.Equal(t, "PLA", got.BaseMaterial)
	assert.InDelta(t, 205.0, got.RecommendedNozzleTemp, 1e-9)
	assert.InDelta(t, 210.0, got.PrintTemperature, 1e-9)
}

func TestMerge_DecodedTemperaturePropagates(t *testing.T) {
	t.Parallel()

	f := plaFixture
	f.printTemp = 50

	got, err := MergeRaw(State{}, f.build(), Update{})
	require.NoError(t, err)
	assert.InDelta(t, 250.0, got.PrintTemperature, 1e-9)
	assert.InDelta(t, 250.0, got.RecommendedNozzleTemp, 1e-9)
}

func TestMerge_PartialUpdateKeepsOtherFields(t *testing.T) {
	t.Parallel()

	current := State{BatchID: "B-42", RemainingFilament: 512}
	current.Manufacturer = "Prusament"

	got, err := Merge(current, nil, manual(t, map[string]any{"REMAINING": 400.5}))
	require.NoError(t, err)
	assert.Equal(t, "B-42", got.BatchID)
	assert.Equal(t, "Prusament", got.Manufacturer)
	assert.InDelta(t, 400.5, got.RemainingFilament, 1e-9)
}

func TestMerge_DecodedKeepsUserDomainFields(t *testing.T) {
	t.Parallel()

	current := State{BatchID: "B-42", RemainingFilament: 512}

	got, err := MergeRaw(current, plaFixture.build(), Update{})
	require.NoError(t, err)
	assert.Equal(t, "B-42", got.BatchID)
	assert.InDelta(t, 512.0, got.RemainingFilament, 1e-9)
	assert.Equal(t, "Polymaker", got.Manufacturer)
}

func TestMerge_UnknownFormatIsAllOrNothing(t *testing.T) {
	t.Parallel()

	f := plaFixture
	f.format = "XY"
	current := State{BatchID: "keep"}

	got, err := MergeRaw(current, f.build(), manual(t, map[string]any{"BATCH_ID": "new"}))
	require.ErrorIs(t, err, ErrNotOpenTag3DFormat)
	assert.Equal(t, current, got)
}

func TestMerge_TooShortIsAllOrNothing(t *testing.T) {
	t.Parallel()

	current := State{BatchID: "keep"}

	got, err := MergeRaw(current, make([]byte, 10), manual(t, map[string]any{"BATCH_ID": "new"}))
	require.ErrorIs(t, err, ErrPayloadTooShort)
	assert.Equal(t, current, got)
}

func TestMerge_DerivedFieldStaysOnceSet(t *testing.T) {
	t.Parallel()

	// a derived field set by an earlier merge isn't refreshed when its
	// sources change later
	first, err := Merge(State{}, nil, manual(t, map[string]any{"BASE_MATERIAL": "PLA"}))
	require.NoError(t, err)

	second, err := Merge(first, nil, manual(t, map[string]any{"BASE_MATERIAL": "PETG"}))
	require.NoError(t, err)
	assert.Equal(t, "PETG", second.BaseMaterial)
	assert.Equal(t, "PLA", second.FilamentMaterial)
}

func TestMerge_ColorDerivation(t *testing.T) {
	t.Parallel()

	got, err := Merge(State{}, nil, manual(t, map[string]any{"COLOR_1_RGBA": "ff8800"}))
	require.NoError(t, err)
	assert.Equal(t, "#FF8800FF", got.Color1RGBA)
	assert.Equal(t, "#FF8800FF", got.FilamentColor)
}

func TestMerge_EmptyUpdateIsNoop(t *testing.T) {
	t.Parallel()

	current := State{BatchID: "B"}
	got, err := Merge(current, nil, Update{})
	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.Empty(t, Changed(current, got))
}

func TestChanged(t *testing.T) {
	t.Parallel()

	before := State{BatchID: "A"}
	after := State{BatchID: "B", RemainingFilament: 10}

	assert.Equal(t, []Field{FieldBatchID, FieldRemainingFilament}, Changed(before, after))
}
