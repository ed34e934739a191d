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
	"encoding/hex"
	"fmt"
	"strings"
)

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ParseHexPayload parses a tag dump supplied as hex text. Any character
// that isn't a hex digit is stripped first, so "4F 54:03-E8" is accepted.
func ParseHexPayload(text string) ([]byte, error) {
	digits := strings.Map(func(r rune) rune {
		if isHexDigit(r) {
			return r
		}
		return -1
	}, text)

	if digits == "" {
		return nil, fmt.Errorf("%w: no hex digits", ErrMalformedHexPayload)
	}
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex digits (%d)", ErrMalformedHexPayload, len(digits))
	}

	data, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHexPayload, err)
	}
	return data, nil
}

// LooksLikeHex reports whether text only contains hex digits and the
// separators ParseHexPayload strips. Used by readers to tell hex text
// dumps apart from raw binary ones.
func LooksLikeHex(data []byte) bool {
	digits := 0
	for _, c := range data {
		switch {
		case isHexDigit(rune(c)):
			digits++
		case c == ' ', c == '\t', c == '\r', c == '\n', c == ':', c == '-', c == ',':
		default:
			return false
		}
	}
	return digits > 0
}
