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

import "errors"

var (
	// ErrPayloadTooShort is returned when a buffer is shorter than CoreLength.
	ErrPayloadTooShort = errors.New("payload too short")
	// ErrMalformedHexPayload is returned when hex text is empty or has an
	// odd number of digits after stripping.
	ErrMalformedHexPayload = errors.New("malformed hex payload")
	// ErrNotOpenTag3DFormat is returned when a tag carries a format
	// identifier other than "OT".
	ErrNotOpenTag3DFormat = errors.New("not an OpenTag3D tag")
	// ErrInvalidColorFormat is returned when a color is not 6 or 8 hex digits.
	ErrInvalidColorFormat = errors.New("invalid color format")
	// ErrInvalidFieldValue is returned when a manual field value can't be
	// converted to the field's kind.
	ErrInvalidFieldValue = errors.New("invalid field value")
)
