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

package requests

import (
	"context"
	"encoding/json"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/google/uuid"
)

// ReaderLister reports the readers currently connected.
type ReaderLister interface {
	Readers() []models.ReaderParams
}

// RequestEnv is everything a method handler may touch. History is nil
// while history is disabled.
type RequestEnv struct {
	Context context.Context
	Config  *config.Instance
	Session *tagstate.Session
	History database.HistoryDBI
	Readers ReaderLister
	Params  json.RawMessage
	ID      uuid.UUID
	IsLocal bool
}
