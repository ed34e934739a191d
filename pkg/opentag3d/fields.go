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
	"math"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Field identifies one entry of the TagState.
type Field int

const (
	FieldTagFormat Field = iota
	FieldTagVersion
	FieldManufacturer
	FieldBaseMaterial
	FieldMaterialModifiers
	FieldColorName
	FieldColor1RGBA
	FieldColor2RGBA
	FieldColor3RGBA
	FieldTargetDiameterUM
	FieldTargetWeightG
	FieldPrintTemperature
	FieldBedTemperature
	FieldDensityGCm3
	FieldOnlineDataURL
	FieldFilamentMaterial
	FieldFilamentColor
	FieldRecommendedNozzleTemp
	FieldRecommendedBedTemp
	FieldBatchID
	FieldRemainingFilament

	fieldCount
)

// Kind is the value type a field holds.
type Kind int

const (
	KindText Kind = iota
	KindFloat
	KindInt
)

type fieldInfo struct {
	name    string
	aliases []string
	kind    Kind
	color   bool
}

var fieldTable = [fieldCount]fieldInfo{
	FieldTagFormat:             {name: "tag_format", kind: KindText},
	FieldTagVersion:            {name: "tag_version", kind: KindFloat},
	FieldManufacturer:          {name: "manufacturer", kind: KindText},
	FieldBaseMaterial:          {name: "base_material", kind: KindText},
	FieldMaterialModifiers:     {name: "material_modifiers", kind: KindText},
	FieldColorName:             {name: "color_name", kind: KindText},
	FieldColor1RGBA:            {name: "color_1_rgba", kind: KindText, color: true},
	FieldColor2RGBA:            {name: "color_2_rgba", kind: KindText, color: true},
	FieldColor3RGBA:            {name: "color_3_rgba", kind: KindText, color: true},
	FieldTargetDiameterUM:      {name: "target_diameter_um", kind: KindInt},
	FieldTargetWeightG:         {name: "target_weight_g", kind: KindInt},
	FieldPrintTemperature:      {name: "print_temperature", kind: KindFloat},
	FieldBedTemperature:        {name: "bed_temperature", kind: KindFloat},
	FieldDensityGCm3:           {name: "density_g_cm3", kind: KindFloat},
	FieldOnlineDataURL:         {name: "online_data_url", kind: KindText},
	FieldFilamentMaterial:      {name: "filament_material", aliases: []string{"MATERIAL"}, kind: KindText},
	FieldFilamentColor:         {name: "filament_color", aliases: []string{"COLOR"}, kind: KindText},
	FieldRecommendedNozzleTemp: {name: "recommended_nozzle_temp", aliases: []string{"NOZZLE_TEMP"}, kind: KindFloat},
	FieldRecommendedBedTemp:    {name: "recommended_bed_temp", aliases: []string{"BED_TEMP"}, kind: KindFloat},
	FieldBatchID:               {name: "batch_id", kind: KindText},
	FieldRemainingFilament:     {name: "remaining_filament", aliases: []string{"REMAINING"}, kind: KindFloat},
}

// tokens maps every accepted upper-case manual token to its field.
var tokens = func() map[string]Field {
	m := make(map[string]Field, int(fieldCount)*2)
	for f, info := range fieldTable {
		m[strings.ToUpper(info.name)] = Field(f)
		for _, a := range info.aliases {
			m[a] = Field(f)
		}
	}
	return m
}()

// Fields returns every field in declaration order.
func Fields() []Field {
	fs := make([]Field, fieldCount)
	for i := range fs {
		fs[i] = Field(i)
	}
	return fs
}

func (f Field) valid() bool {
	return f >= 0 && f < fieldCount
}

// Name returns the snake_case name used in status output.
func (f Field) Name() string {
	if !f.valid() {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldTable[f].name
}

func (f Field) String() string {
	return f.Name()
}

// Kind returns the value type of the field. Unknown fields are text.
func (f Field) Kind() Kind {
	if !f.valid() {
		return KindText
	}
	return fieldTable[f].kind
}

// IsColor reports whether the field holds a #RRGGBBAA color.
func (f Field) IsColor() bool {
	return f.valid() && fieldTable[f].color
}

// LookupToken resolves a manual token such as "MATERIAL" or
// "base_material" to a field. Matching is case-insensitive.
func LookupToken(token string) (Field, bool) {
	f, ok := tokens[strings.ToUpper(strings.TrimSpace(token))]
	return f, ok
}

// State is the session TagState: every decoded and derived field plus
// the user-domain batch id and remaining filament.
type State struct {
	Record            `json:",inline" yaml:",inline"`
	BatchID           string  `json:"batch_id" yaml:"batch_id"`
	RemainingFilament float64 `json:"remaining_filament" yaml:"remaining_filament"`
}

// Get returns the value of a field as string, float64 or int.
func (s *State) Get(f Field) any {
	switch f {
	case FieldTagFormat:
		return s.TagFormat
	case FieldTagVersion:
		return s.TagVersion
	case FieldManufacturer:
		return s.Manufacturer
	case FieldBaseMaterial:
		return s.BaseMaterial
	case FieldMaterialModifiers:
		return s.MaterialModifiers
	case FieldColorName:
		return s.ColorName
	case FieldColor1RGBA:
		return s.Color1RGBA
	case FieldColor2RGBA:
		return s.Color2RGBA
	case FieldColor3RGBA:
		return s.Color3RGBA
	case FieldTargetDiameterUM:
		return s.TargetDiameterUM
	case FieldTargetWeightG:
		return s.TargetWeightG
	case FieldPrintTemperature:
		return s.PrintTemperature
	case FieldBedTemperature:
		return s.BedTemperature
	case FieldDensityGCm3:
		return s.DensityGCm3
	case FieldOnlineDataURL:
		return s.OnlineDataURL
	case FieldFilamentMaterial:
		return s.FilamentMaterial
	case FieldFilamentColor:
		return s.FilamentColor
	case FieldRecommendedNozzleTemp:
		return s.RecommendedNozzleTemp
	case FieldRecommendedBedTemp:
		return s.RecommendedBedTemp
	case FieldBatchID:
		return s.BatchID
	case FieldRemainingFilament:
		return s.RemainingFilament
	default:
		return nil
	}
}

// set assigns an already kind-checked value.
//
//nolint:forcetypeassert // values only enter through Update.Set
func (s *State) set(f Field, v any) {
	switch f {
	case FieldTagFormat:
		s.TagFormat = v.(string)
	case FieldTagVersion:
		s.TagVersion = v.(float64)
	case FieldManufacturer:
		s.Manufacturer = v.(string)
	case FieldBaseMaterial:
		s.BaseMaterial = v.(string)
	case FieldMaterialModifiers:
		s.MaterialModifiers = v.(string)
	case FieldColorName:
		s.ColorName = v.(string)
	case FieldColor1RGBA:
		s.Color1RGBA = v.(string)
	case FieldColor2RGBA:
		s.Color2RGBA = v.(string)
	case FieldColor3RGBA:
		s.Color3RGBA = v.(string)
	case FieldTargetDiameterUM:
		s.TargetDiameterUM = v.(int)
	case FieldTargetWeightG:
		s.TargetWeightG = v.(int)
	case FieldPrintTemperature:
		s.PrintTemperature = v.(float64)
	case FieldBedTemperature:
		s.BedTemperature = v.(float64)
	case FieldDensityGCm3:
		s.DensityGCm3 = v.(float64)
	case FieldOnlineDataURL:
		s.OnlineDataURL = v.(string)
	case FieldFilamentMaterial:
		s.FilamentMaterial = v.(string)
	case FieldFilamentColor:
		s.FilamentColor = v.(string)
	case FieldRecommendedNozzleTemp:
		s.RecommendedNozzleTemp = v.(float64)
	case FieldRecommendedBedTemp:
		s.RecommendedBedTemp = v.(float64)
	case FieldBatchID:
		s.BatchID = v.(string)
	case FieldRemainingFilament:
		s.RemainingFilament = v.(float64)
	}
}

// isZero reports whether a field holds its empty/zero value.
func (s *State) isZero(f Field) bool {
	switch v := s.Get(f).(type) {
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	default:
		return true
	}
}

// Map renders the state keyed by snake_case field name.
func (s *State) Map() map[string]any {
	m := make(map[string]any, fieldCount)
	for _, f := range Fields() {
		m[f.Name()] = s.Get(f)
	}
	return m
}

// Update is a presence-tracked partial field set. Only fields set on it
// are written when it's applied to a State.
type Update struct {
	values map[Field]any
}

// Set stores a value for a field, converting it to the field's kind.
// Strings are accepted for numeric fields and numbers for text fields.
// Color fields are validated and normalized to #RRGGBBAA.
func (u *Update) Set(f Field, v any) error {
	if !f.valid() {
		return fmt.Errorf("%w: unknown field %d", ErrInvalidFieldValue, int(f))
	}

	converted, err := convert(f, v)
	if err != nil {
		return err
	}

	if u.values == nil {
		u.values = make(map[Field]any)
	}
	u.values[f] = converted
	return nil
}

func convert(f Field, v any) (any, error) {
	info := fieldTable[f]
	switch info.kind {
	case KindText:
		var s string
		if err := mapstructure.WeakDecode(v, &s); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFieldValue, info.name, err)
		}
		if info.color && s != "" {
			return ParseRGBAParameter(s)
		}
		return s, nil
	case KindFloat:
		var n float64
		if err := mapstructure.WeakDecode(v, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFieldValue, info.name, err)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: %s must be finite", ErrInvalidFieldValue, info.name)
		}
		return n, nil
	case KindInt:
		var n float64
		if err := mapstructure.WeakDecode(v, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFieldValue, info.name, err)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: %s must be finite", ErrInvalidFieldValue, info.name)
		}
		return int(math.Round(n)), nil
	default:
		return nil, fmt.Errorf("%w: %s has unknown kind", ErrInvalidFieldValue, info.name)
	}
}

// Has reports whether the field is present in the update.
func (u *Update) Has(f Field) bool {
	_, ok := u.values[f]
	return ok
}

// Get returns the value stored for a field.
func (u *Update) Get(f Field) (any, bool) {
	v, ok := u.values[f]
	return v, ok
}

// Len returns the number of fields present.
func (u *Update) Len() int {
	return len(u.values)
}

// Fields returns the present fields in declaration order.
func (u *Update) Fields() []Field {
	fs := make([]Field, 0, len(u.values))
	for f := range u.values {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// overlay copies every field of other onto u, other wins.
func (u *Update) overlay(other Update) {
	for f, v := range other.values {
		if u.values == nil {
			u.values = make(map[Field]any)
		}
		u.values[f] = v
	}
}

// UpdateFromRecord builds an update holding every field of a decoded record.
func UpdateFromRecord(rec *Record) Update {
	u := Update{values: make(map[Field]any, fieldCount)}
	s := State{Record: *rec}
	for _, f := range Fields() {
		if f == FieldBatchID || f == FieldRemainingFilament {
			continue
		}
		u.values[f] = s.Get(f)
	}
	return u
}

// ParseManual builds an update from the manual fields input channel:
// upper-case tokens mapped to string or numeric values. Unknown tokens and
// nil values are skipped. Two tokens naming the same field, such as
// MATERIAL and FILAMENT_MATERIAL, are rejected.
func ParseManual(in map[string]any) (Update, error) {
	var u Update
	seen := make(map[Field]string, len(in))
	for token, v := range in {
		if v == nil {
			continue
		}
		f, ok := LookupToken(token)
		if !ok {
			continue
		}
		if prev, dup := seen[f]; dup {
			pair := []string{prev, token}
			sort.Strings(pair)
			return Update{}, fmt.Errorf("%w: %s and %s both set %s",
				ErrInvalidFieldValue, pair[0], pair[1], f.Name())
		}
		seen[f] = token
		if err := u.Set(f, v); err != nil {
			return Update{}, err
		}
	}
	return u, nil
}
