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

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testDump() []byte {
	buf := make([]byte, opentag3d.CoreLength)
	copy(buf, "OT")
	copy(buf[0x14:], "PETG")
	buf[0x4E] = 48
	buf[0x4F] = 16
	return buf
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	f, _, err := parseFlags([]string{"-d", "4F54", "--output", "json", "--debug"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "4F54", f.decode)
	assert.Equal(t, outputJSON, f.output)
	assert.True(t, f.debug)

	f, _, err = parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, outputYAML, f.output)
	assert.Empty(t, f.configPath)

	_, _, err = parseFlags([]string{"--nope"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRun_VersionAndHelp(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "OpenTag3D Core v")

	out.Reset()
	require.NoError(t, run([]string{"-h"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "--decode")
}

func TestRunDecode_HexJSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run([]string{"--decode", hex.EncodeToString(testDump()), "-o", "json"}, &out, &bytes.Buffer{})
	require.NoError(t, err)

	var res struct {
		Record map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "OT", res.Record["tag_format"])
	assert.Equal(t, "PETG", res.Record["base_material"])
	assert.InDelta(t, 240.0, res.Record["print_temperature"], 0.001)
	assert.InDelta(t, 80.0, res.Record["bed_temperature"], 0.001)
}

func TestRunDecode_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	binPath := filepath.Join(dir, "spool.bin")
	require.NoError(t, os.WriteFile(binPath, testDump(), 0o600))
	hexPath := filepath.Join(dir, "spool.txt")
	require.NoError(t, os.WriteFile(hexPath, []byte(hex.EncodeToString(testDump())+"\n"), 0o600))

	for _, path := range []string{binPath, hexPath} {
		var out bytes.Buffer
		require.NoError(t, runDecode("@"+path, outputYAML, &out))

		var res map[string]map[string]any
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &res), path)
		assert.Equal(t, "PETG", res["record"]["base_material"], path)
	}
}

func TestRunDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arg     string
		output  string
		wantErr error
	}{
		{name: "bad hex", arg: "zz", output: outputYAML, wantErr: opentag3d.ErrMalformedHexPayload},
		{name: "too short", arg: "4F54", output: outputYAML, wantErr: opentag3d.ErrPayloadTooShort},
		{name: "missing file", arg: "@/does/not/exist", output: outputYAML},
		{name: "bad format", arg: hex.EncodeToString(testDump()), output: "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := runDecode(tt.arg, tt.output, &bytes.Buffer{})
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRunDecode_ForeignFormat(t *testing.T) {
	t.Parallel()

	dump := testDump()
	copy(dump, "XX")

	var out bytes.Buffer
	err := runDecode(hex.EncodeToString(dump), outputJSON, &out)
	require.ErrorIs(t, err, opentag3d.ErrNotOpenTag3DFormat)
	assert.Contains(t, out.String(), `"tag_format": "XX"`)
}
