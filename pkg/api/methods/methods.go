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

// Package methods implements the JSON-RPC method handlers.
package methods

import (
	"errors"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/validation"
)

// NoContent is returned by handlers with nothing to report. It
// marshals to an empty result.
type NoContent struct{}

// ParamsError marks a handler error caused by the request params, so the
// server can answer with an invalid params code.
type ParamsError struct {
	Err error
}

func (e *ParamsError) Error() string {
	return "invalid params: " + e.Err.Error()
}

func (e *ParamsError) Unwrap() error {
	return e.Err
}

func paramsErr(err error) error {
	return &ParamsError{Err: err}
}

// IsParamsError reports whether err came from bad request params.
func IsParamsError(err error) bool {
	var pe *ParamsError
	return errors.As(err, &pe) ||
		errors.Is(err, validation.ErrMissingParams) ||
		errors.Is(err, validation.ErrInvalidParams)
}
