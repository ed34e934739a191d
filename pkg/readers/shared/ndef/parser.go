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
	"strings"

	"github.com/hsanjuan/go-ndef"
)

// ParseMessage parses the NDEF message found in a tag data area.
func ParseMessage(data []byte) (*ndef.Message, error) {
	raw, err := FindMessage(data)
	if err != nil {
		return nil, err
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
	}
	return msg, nil
}

// ExtractOpenTag3D returns the payload of the first application/opentag3d
// media record in a tag data area.
func ExtractOpenTag3D(data []byte) ([]byte, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}

	for _, rec := range msg.Records {
		if rec.TNF() != ndef.MediaType || !strings.EqualFold(rec.Type(), MIMEType) {
			continue
		}
		payload, err := rec.Payload()
		if err != nil {
			return nil, fmt.Errorf("failed to get NDEF record payload: %w", err)
		}
		return payload.Marshal(), nil
	}

	return nil, ErrNoOpenTag3DRecord
}
