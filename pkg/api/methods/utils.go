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

package methods

import (
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models/requests"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/rs/zerolog/log"
)

func HandleVersion(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Debug().Msg("received version request")
	return models.VersionResponse{
		Version:  config.AppVersion,
		DeviceID: env.Config.DeviceID(),
	}, nil
}

func HandleReaders(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	resp := models.ReadersResponse{Readers: []models.ReaderParams{}}
	if env.Readers != nil {
		resp.Readers = append(resp.Readers, env.Readers.Readers()...)
	}
	return resp, nil
}
