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

import "fmt"

// derivedFields are the convenience fields recomputed after a merge when
// they weren't set explicitly and are still empty.
var derivedFields = []Field{
	FieldFilamentMaterial,
	FieldFilamentColor,
	FieldRecommendedNozzleTemp,
	FieldRecommendedBedTemp,
}

// Merge combines an optional decode result and manual overrides into a
// new state. A nil decoded means no raw payload was part of this call.
//
// The update set is built first: every field of the decoded record, then
// the manual overrides on top. It's applied by key onto a copy of
// current, and derived fields missing from the update set are filled in
// only while they're still empty. An unknown-format decode fails the
// whole call and current is returned unchanged.
func Merge(current State, decoded *Result, manual Update) (State, error) {
	var updates Update

	if decoded != nil {
		if !decoded.Valid() {
			format := ""
			if decoded.Unknown != nil {
				format = decoded.Unknown.TagFormat
			}
			return current, fmt.Errorf("%w: tag format %q", ErrNotOpenTag3DFormat, format)
		}
		updates = UpdateFromRecord(decoded.Record)
	}
	updates.overlay(manual)

	next := current
	for _, f := range updates.Fields() {
		v, _ := updates.Get(f)
		next.set(f, v)
	}

	for _, f := range derivedFields {
		if updates.Has(f) || !next.isZero(f) {
			continue
		}
		next.set(f, derive(&next, f))
	}

	return next, nil
}

// MergeRaw decodes raw and merges the result with manual overrides. A
// decode failure aborts the merge before any override is applied.
func MergeRaw(current State, raw []byte, manual Update) (State, error) {
	res, err := Decode(raw)
	if err != nil {
		return current, err
	}
	return Merge(current, &res, manual)
}

func derive(s *State, f Field) any {
	switch f {
	case FieldFilamentMaterial:
		return joinMaterial(s.BaseMaterial, s.MaterialModifiers)
	case FieldFilamentColor:
		return pickColor(s.ColorName, s.Color1RGBA)
	case FieldRecommendedNozzleTemp:
		return s.PrintTemperature
	case FieldRecommendedBedTemp:
		return s.BedTemperature
	default:
		return s.Get(f)
	}
}

// Changed returns the fields whose values differ between two states.
func Changed(before, after State) []Field {
	var changed []Field
	for _, f := range Fields() {
		if before.Get(f) != after.Get(f) {
			changed = append(changed, f)
		}
	}
	return changed
}
