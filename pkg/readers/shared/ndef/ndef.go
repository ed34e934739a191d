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

// Package ndef finds the NDEF message in Type 2 tag memory and unwraps the
// application/opentag3d MIME record some tags use instead of storing the
// raw OpenTag3D record.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const MIMEType = "application/opentag3d"

// TLV tags from NFCForum-TS-Type-2-Tag.
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
)

var (
	NdefEnd = []byte{tlvTerminator}

	// ErrNoNDEF is returned when no NDEF message is found.
	ErrNoNDEF = errors.New("no NDEF record found")
	// ErrInvalidNDEF is returned when the TLV or NDEF structure is broken.
	ErrInvalidNDEF = errors.New("invalid NDEF format")
	// ErrNoOpenTag3DRecord is returned for a valid NDEF message without an
	// application/opentag3d record.
	ErrNoOpenTag3DRecord = errors.New("no " + MIMEType + " record")
)

// calculateNDEFHeader builds the NDEF TLV header for a payload.
func calculateNDEFHeader(payload []byte) ([]byte, error) {
	length := len(payload)

	if length < 0xFF {
		return []byte{tlvNDEF, byte(length)}, nil
	}

	if length > 0xFFFF {
		return nil, errors.New("NDEF payload too large")
	}

	header := []byte{tlvNDEF, 0xFF, 0, 0}
	binary.BigEndian.PutUint16(header[2:], uint16(length))
	return header, nil
}

// tlvLength reads the length field at data[i], returning the length and the
// number of bytes the field used.
func tlvLength(data []byte, i int) (length, size int, err error) {
	if i >= len(data) {
		return 0, 0, fmt.Errorf("%w: truncated TLV length", ErrInvalidNDEF)
	}
	if data[i] != 0xFF {
		return int(data[i]), 1, nil
	}
	if i+3 > len(data) {
		return 0, 0, fmt.Errorf("%w: truncated long TLV length", ErrInvalidNDEF)
	}
	return int(binary.BigEndian.Uint16(data[i+1 : i+3])), 3, nil
}

// FindMessage walks the TLV blocks in data, which starts at the first
// byte of the tag's data area, and returns the value of the first NDEF TLV.
func FindMessage(data []byte) ([]byte, error) {
	i := 0
	for i < len(data) {
		tag := data[i]
		i++

		switch tag {
		case tlvNull:
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		}

		length, size, err := tlvLength(data, i)
		if err != nil {
			return nil, err
		}
		i += size
		if i+length > len(data) {
			return nil, fmt.Errorf("%w: TLV 0x%02X claims %d bytes", ErrInvalidNDEF, tag, length)
		}

		if tag == tlvNDEF {
			if length == 0 {
				return nil, ErrNoNDEF
			}
			return data[i : i+length], nil
		}
		// lock control, memory control and proprietary TLVs
		i += length
	}
	return nil, ErrNoNDEF
}
