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
	"fmt"
	"strings"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models/requests"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/validation"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/rs/zerolog/log"
)

// SourceAPI is recorded as the input source of tag.set. A client supplied
// source is appended as "api:<source>".
const SourceAPI = "api"

func HandleTag(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Debug().Msg("received tag request")
	return env.Session.Response(), nil
}

// HandleTagSet merges a payload and manual fields into the session. Merge
// errors are returned as is so the caller sees why the tag was refused.
func HandleTagSet(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received tag set request")

	var p models.TagSetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, paramsErr(err)
	}

	manual, err := opentag3d.ParseManual(p.Fields)
	if err != nil {
		return nil, paramsErr(err)
	}

	in := tagstate.Input{
		Manual: manual,
		Source: apiSource(p.Source),
	}
	if p.Payload != nil {
		in.Payload = *p.Payload
	}
	if in.Payload == "" && manual.Len() == 0 {
		return nil, paramsErr(errors.New("payload or fields required"))
	}

	if _, _, err := env.Session.Apply(in); err != nil {
		return nil, err //nolint:wrapcheck // merge errors are surfaced verbatim
	}
	return env.Session.Response(), nil
}

// apiSource namespaces a client supplied source so it can never name a
// registered reader.
func apiSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return SourceAPI
	}
	return SourceAPI + ":" + source
}

// HandleTagDecode decodes a payload without touching the session.
func HandleTagDecode(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var p models.TagDecodeParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, paramsErr(err)
	}

	raw, err := opentag3d.ParseHexPayload(p.Payload)
	if err != nil {
		return nil, paramsErr(err)
	}
	res, err := opentag3d.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	return models.DecodeResponse{
		Record:  res.Record,
		Unknown: res.Unknown,
		Valid:   res.Valid(),
	}, nil
}

func HandleTagRefresh(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received tag refresh request")
	if err := env.Session.Refresh(); err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}
	return NoContent{}, nil
}

func HandleTagRemaining(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var p models.TagRemainingParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, paramsErr(err)
	}

	log.Info().Msgf("received remaining filament update: %.1fg", *p.Remaining)
	if err := env.Session.UpdateRemaining(*p.Remaining); err != nil {
		return nil, fmt.Errorf("update remaining failed: %w", err)
	}
	return NoContent{}, nil
}
