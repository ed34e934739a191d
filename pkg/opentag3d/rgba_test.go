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

func TestFormatRGBA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
		in   []byte
	}{
		{name: "opaque orange", in: []byte{0xFF, 0x88, 0x00, 0xFF}, want: "#FF8800FF"},
		{name: "transparent", in: []byte{0x01, 0x02, 0x03, 0x00}, want: "#01020300"},
		{name: "all zero is absent", in: []byte{0, 0, 0, 0}, want: ""},
		{name: "too short", in: []byte{0xFF, 0xFF, 0xFF}, want: ""},
		{name: "too long", in: []byte{1, 2, 3, 4, 5}, want: ""},
		{name: "nil", in: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatRGBA(tt.in))
		})
	}
}

func TestParseRGBAParameter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "six digits gets alpha", in: "FF8800", want: "#FF8800FF"},
		{name: "eight digits lowercase", in: "#aa00ff11", want: "#AA00FF11"},
		{name: "hash six digits", in: "#123abc", want: "#123ABCFF"},
		{name: "five digits", in: "12345", wantErr: true},
		{name: "seven digits", in: "#1234567", wantErr: true},
		{name: "non hex", in: "GG0000", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "only hash", in: "#", wantErr: true},
		{name: "double hash", in: "##FF8800", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRGBAParameter(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidColorFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
