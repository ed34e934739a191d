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
	"fmt"
	"strings"
)

// FormatRGBA packs a 4 byte color as #RRGGBBAA. Anything that isn't 4
// bytes, or is all zero, is an absent color and returns "".
func FormatRGBA(b []byte) string {
	if len(b) != lenColor {
		return ""
	}
	if b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 {
		return ""
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", b[0], b[1], b[2], b[3])
}

// ParseRGBAParameter validates a user supplied color. It takes an
// optional leading '#' followed by 6 or 8 hex digits; 6 digit values get
// an opaque FF alpha. The result is always uppercase #RRGGBBAA.
func ParseRGBAParameter(text string) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(text), "#")

	if len(s) != 6 && len(s) != 8 {
		return "", fmt.Errorf("%w: %q must be 6 or 8 hex digits", ErrInvalidColorFormat, text)
	}
	for _, r := range s {
		if !isHexDigit(r) {
			return "", fmt.Errorf("%w: %q contains non-hex characters", ErrInvalidColorFormat, text)
		}
	}

	if len(s) == 6 {
		s += "FF"
	}
	return "#" + strings.ToUpper(s), nil
}
