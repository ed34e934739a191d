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

// Package validation provides validation for API request parameters using
// go-playground/validator with custom validators for tag payloads and
// colors.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/go-playground/validator/v10"
)

// Common validation errors.
var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// Validator handles validation of API parameters.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator with registered custom validators.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("hexpayload", validateHexPayload)
	_ = v.RegisterValidation("rgba", validateRGBA)
	v.RegisterStructValidation(validateTagSet, models.TagSetParams{})

	return &Validator{validate: v}
}

// DefaultValidator is a shared validator instance for API use.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns a formatted error if validation fails.
func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal unmarshals JSON params and validates them.
// Returns ErrMissingParams if params is empty, ErrInvalidParams if unmarshal fails,
// or an Error if validation fails.
func ValidateAndUnmarshal[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// validateHexPayload accepts anything ParseHexPayload accepts: hex digits
// with any separators, an even digit count and at least one byte.
func validateHexPayload(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, err := opentag3d.ParseHexPayload(val)
	return err == nil
}

// validateRGBA checks a manual color override. Empty clears the color.
func validateRGBA(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, err := opentag3d.ParseRGBAParameter(val)
	return err == nil
}

// validateTagSet runs the rgba check on manual fields that name a color.
func validateTagSet(sl validator.StructLevel) {
	params, ok := sl.Current().Interface().(models.TagSetParams)
	if !ok {
		return
	}
	for token, value := range params.Fields {
		f, known := opentag3d.LookupToken(token)
		if !known || !f.IsColor() || value == nil {
			continue
		}
		s, isString := value.(string)
		if !isString || sl.Validator().Var(s, "rgba") != nil {
			sl.ReportError(value, f.Name(), token, "rgba", "")
		}
	}
}
