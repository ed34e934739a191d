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

package notifications

import (
	"encoding/json"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/rs/zerolog/log"
)

// sendNotification marshals the payload and sends it without blocking. A
// full channel drops the notification.
func sendNotification(ns chan<- models.Notification, method string, payload any) {
	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("marshalling notification params")
			return
		}
		params = data
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping notification")
	}
}

func TagUpdated(ns chan<- models.Notification, payload models.TagResponse) {
	sendNotification(ns, models.NotificationTagUpdated, payload)
}

func FilamentApply(ns chan<- models.Notification, payload models.FilamentApplyParams) {
	sendNotification(ns, models.NotificationFilamentApply, payload)
}

func ReadersAdded(ns chan<- models.Notification, payload models.ReaderParams) {
	sendNotification(ns, models.NotificationReadersAdded, payload)
}

func ReadersRemoved(ns chan<- models.Notification, id string) {
	sendNotification(ns, models.NotificationReadersRemoved, id)
}
