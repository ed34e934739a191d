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
	"errors"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models/requests"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/validation"
	"github.com/OpenTag3D/opentag3d-core/pkg/database/historydb"
	"github.com/rs/zerolog/log"
)

var ErrHistoryDisabled = errors.New("history is disabled")

func HandleTagHistory(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received history request")

	if env.History == nil {
		return nil, ErrHistoryDisabled
	}

	limit := historydb.DefaultLimit
	if len(env.Params) > 0 {
		var p models.TagHistoryParams
		if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
			return nil, paramsErr(err)
		}
		if p.Limit != nil {
			limit = *p.Limit
		}
	}

	entries, err := env.History.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("error getting history")
		return nil, errors.New("error getting history")
	}

	resp := models.HistoryResponse{
		Entries: make([]models.HistoryResponseEntry, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = models.HistoryResponseEntry{
			Time:      e.Time,
			Source:    e.Source,
			TagFormat: e.TagFormat,
			Material:  e.Material,
			Color:     e.Color,
			Payload:   e.Payload,
			Error:     e.Error,
			Success:   e.Success,
		}
	}
	return resp, nil
}
