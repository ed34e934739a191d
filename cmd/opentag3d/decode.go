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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"gopkg.in/yaml.v3"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

// readPayload takes hex text, or @path for a dump file holding either hex
// text or raw tag bytes.
func readPayload(arg string) ([]byte, error) {
	path, isFile := strings.CutPrefix(arg, "@")
	if !isFile {
		return opentag3d.ParseHexPayload(arg) //nolint:wrapcheck // sentinel errors are the message
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump file: %w", err)
	}
	if opentag3d.LooksLikeHex(data) {
		return opentag3d.ParseHexPayload(string(data)) //nolint:wrapcheck // sentinel errors are the message
	}
	return data, nil
}

func runDecode(arg, output string, w io.Writer) error {
	raw, err := readPayload(arg)
	if err != nil {
		return err
	}

	res, err := opentag3d.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	if !res.Valid() {
		return fmt.Errorf("%w: tag format %q", opentag3d.ErrNotOpenTag3DFormat, res.Unknown.TagFormat)
	}
	return nil
}
