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

// Package opentag3d decodes the OpenTag3D filament tag binary record and
// merges decoded records with manual overrides into a session TagState.
package opentag3d

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// FormatID is the only tag format identifier accepted as OpenTag3D.
	FormatID = "OT"
	// BaseAddress is the device address the core record starts at.
	BaseAddress = 0x10
	// CoreLength is the size of the core record, addresses 0x10-0x9F.
	CoreLength = 0x90
	// FullDumpLength is the minimum size of a dump starting at address 0x00.
	FullDumpLength = BaseAddress + CoreLength
)

type charset int

const (
	charsetUTF8 charset = iota
	charsetASCII
)

// field addresses and lengths, absolute device addresses
const (
	addrTagFormat         = 0x10
	addrTagVersion        = 0x12
	addrManufacturer      = 0x14
	addrBaseMaterial      = 0x24
	addrMaterialModifiers = 0x29
	addrColorName         = 0x2E
	addrColor1            = 0x4E
	addrColor2            = 0x52
	addrColor3            = 0x56
	addrTargetDiameter    = 0x5A
	addrTargetWeight      = 0x5C
	addrPrintTemp         = 0x5E
	addrBedTemp           = 0x5F
	addrDensity           = 0x60
	addrOnlineDataURL     = 0x6D

	lenTagFormat         = 2
	lenManufacturer      = 16
	lenBaseMaterial      = 5
	lenMaterialModifiers = 5
	lenColorName         = 32
	lenColor             = 4
	lenOnlineDataURL     = 32

	temperatureScale = 5.0
	thousandths      = 1000.0
)

// Record is a decoded OpenTag3D tag. The last four fields are derived
// from the others and are never stored on the tag.
type Record struct {
	TagFormat             string  `json:"tag_format" yaml:"tag_format"`
	Manufacturer          string  `json:"manufacturer" yaml:"manufacturer"`
	BaseMaterial          string  `json:"base_material" yaml:"base_material"`
	MaterialModifiers     string  `json:"material_modifiers" yaml:"material_modifiers"`
	ColorName             string  `json:"color_name" yaml:"color_name"`
	Color1RGBA            string  `json:"color_1_rgba" yaml:"color_1_rgba"`
	Color2RGBA            string  `json:"color_2_rgba" yaml:"color_2_rgba"`
	Color3RGBA            string  `json:"color_3_rgba" yaml:"color_3_rgba"`
	OnlineDataURL         string  `json:"online_data_url" yaml:"online_data_url"`
	FilamentMaterial      string  `json:"filament_material" yaml:"filament_material"`
	FilamentColor         string  `json:"filament_color" yaml:"filament_color"`
	TagVersion            float64 `json:"tag_version" yaml:"tag_version"`
	PrintTemperature      float64 `json:"print_temperature" yaml:"print_temperature"`
	BedTemperature        float64 `json:"bed_temperature" yaml:"bed_temperature"`
	DensityGCm3           float64 `json:"density_g_cm3" yaml:"density_g_cm3"`
	RecommendedNozzleTemp float64 `json:"recommended_nozzle_temp" yaml:"recommended_nozzle_temp"`
	RecommendedBedTemp    float64 `json:"recommended_bed_temp" yaml:"recommended_bed_temp"`
	TargetDiameterUM      int     `json:"target_diameter_um" yaml:"target_diameter_um"`
	TargetWeightG         int     `json:"target_weight_g" yaml:"target_weight_g"`
}

// UnknownFormat is returned for a readable tag whose format identifier is
// present but isn't "OT".
type UnknownFormat struct {
	TagFormat  string  `json:"tag_format" yaml:"tag_format"`
	TagVersion float64 `json:"tag_version" yaml:"tag_version"`
}

// Result holds exactly one of Record or Unknown.
type Result struct {
	Record  *Record        `json:"record,omitempty" yaml:"record,omitempty"`
	Unknown *UnknownFormat `json:"unknown,omitempty" yaml:"unknown,omitempty"`
}

// Valid reports whether the result is an OpenTag3D record.
func (r Result) Valid() bool {
	return r.Record != nil
}

// window reads fields out of a raw buffer by absolute device address.
type window struct {
	raw   []byte
	shift int
}

func newWindow(raw []byte) window {
	if len(raw) >= FullDumpLength {
		return window{raw: raw}
	}
	return window{raw: raw, shift: -BaseAddress}
}

// slice returns nil for any range outside the buffer.
func (w window) slice(addr, n int) []byte {
	start := addr + w.shift
	if start < 0 || n < 0 || start+n > len(w.raw) {
		return nil
	}
	return w.raw[start : start+n]
}

func (w window) uint8(addr int) uint8 {
	b := w.slice(addr, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (w window) uint16(addr int) uint16 {
	b := w.slice(addr, 2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (w window) str(addr, n int, cs charset) string {
	return decodeString(w.slice(addr, n), cs)
}

// Decode validates and decodes a raw tag buffer. Buffers of at least
// FullDumpLength bytes are read as a dump starting at address 0x00,
// shorter ones as starting at BaseAddress.
func Decode(raw []byte) (Result, error) {
	if len(raw) < CoreLength {
		return Result{}, fmt.Errorf("%w: got %d bytes, need %d", ErrPayloadTooShort, len(raw), CoreLength)
	}

	w := newWindow(raw)

	format := w.str(addrTagFormat, lenTagFormat, charsetASCII)
	if format != "" && format != FormatID {
		return Result{Unknown: &UnknownFormat{TagFormat: format}}, nil
	}

	rec := &Record{
		TagFormat:         format,
		TagVersion:        float64(w.uint16(addrTagVersion)) / thousandths,
		Manufacturer:      w.str(addrManufacturer, lenManufacturer, charsetUTF8),
		BaseMaterial:      w.str(addrBaseMaterial, lenBaseMaterial, charsetUTF8),
		MaterialModifiers: w.str(addrMaterialModifiers, lenMaterialModifiers, charsetUTF8),
		ColorName:         w.str(addrColorName, lenColorName, charsetUTF8),
		Color1RGBA:        FormatRGBA(w.slice(addrColor1, lenColor)),
		Color2RGBA:        FormatRGBA(w.slice(addrColor2, lenColor)),
		Color3RGBA:        FormatRGBA(w.slice(addrColor3, lenColor)),
		TargetDiameterUM:  int(w.uint16(addrTargetDiameter)),
		TargetWeightG:     int(w.uint16(addrTargetWeight)),
		PrintTemperature:  float64(w.uint8(addrPrintTemp)) * temperatureScale,
		BedTemperature:    float64(w.uint8(addrBedTemp)) * temperatureScale,
		DensityGCm3:       density(w.uint16(addrDensity)),
		OnlineDataURL:     w.str(addrOnlineDataURL, lenOnlineDataURL, charsetASCII),
	}
	rec.derive()

	return Result{Record: rec}, nil
}

func density(raw uint16) float64 {
	if raw == 0 {
		return 0.0
	}
	return float64(raw) / thousandths
}

func (r *Record) derive() {
	r.FilamentMaterial = joinMaterial(r.BaseMaterial, r.MaterialModifiers)
	r.FilamentColor = pickColor(r.ColorName, r.Color1RGBA)
	r.RecommendedNozzleTemp = r.PrintTemperature
	r.RecommendedBedTemp = r.BedTemperature
}

func joinMaterial(base, modifiers string) string {
	switch {
	case base != "" && modifiers != "":
		return base + " " + modifiers
	case base != "":
		return base
	default:
		return modifiers
	}
}

func pickColor(name, rgba string) string {
	if name != "" {
		return name
	}
	return rgba
}

// decodeString cuts b at the first NUL, drops bytes that aren't valid in
// the charset and trims surrounding whitespace.
func decodeString(b []byte, cs charset) string {
	if len(b) == 0 {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	drop := runes.Remove(runes.Predicate(func(r rune) bool {
		if r == utf8.RuneError {
			return true
		}
		return cs == charsetASCII && r > unicode.MaxASCII
	}))

	out, _, err := transform.Bytes(transform.Chain(runes.ReplaceIllFormed(), drop), b)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
