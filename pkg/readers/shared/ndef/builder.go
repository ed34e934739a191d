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

package ndef

import (
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// BuildOpenTag3DMessage wraps a record in an application/opentag3d media
// record inside an NDEF TLV, as it appears in tag memory after the
// capability container.
func BuildOpenTag3DMessage(record []byte) ([]byte, error) {
	msg := ndef.NewMediaMessage(MIMEType, record)
	payload, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NDEF message: %w", err)
	}

	header, err := calculateNDEFHeader(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate NDEF header: %w", err)
	}

	result := make([]byte, 0, len(header)+len(payload)+1)
	result = append(result, header...)
	result = append(result, payload...)
	result = append(result, NdefEnd...)

	return result, nil
}
