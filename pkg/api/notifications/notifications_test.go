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
	"testing"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A full channel must never block the session writer.
func TestSendNotification_NonBlocking(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification)

	done := make(chan struct{})
	go func() {
		TagUpdated(ns, models.TagResponse{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("sendNotification blocked on full channel")
	}
}

func TestTagUpdated(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	resp := models.TagResponse{Source: "mqtt:broker/spool"}
	resp.BaseMaterial = "PETG"
	TagUpdated(ns, resp)

	n := <-ns
	assert.Equal(t, models.NotificationTagUpdated, n.Method)

	var out map[string]any
	require.NoError(t, json.Unmarshal(n.Params, &out))
	assert.Equal(t, "PETG", out["base_material"])
	assert.Equal(t, "mqtt:broker/spool", out["source"])
}

func TestFilamentApply(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	FilamentApply(ns, models.FilamentApplyParams{Material: "PLA", NozzleTemp: 215, BedTemp: 60})

	n := <-ns
	assert.Equal(t, models.NotificationFilamentApply, n.Method)
	assert.JSONEq(t, `{"material":"PLA","nozzleTemp":215,"bedTemp":60}`, string(n.Params))
}

func TestReaders(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 2)
	ReadersAdded(ns, models.ReaderParams{
		ID:           "file:/tmp/tag.bin",
		Driver:       "file",
		Capabilities: []string{"refresh"},
	})
	ReadersRemoved(ns, "file:/tmp/tag.bin")

	added := <-ns
	assert.Equal(t, models.NotificationReadersAdded, added.Method)
	assert.Contains(t, string(added.Params), `"driver":"file"`)

	removed := <-ns
	assert.Equal(t, models.NotificationReadersRemoved, removed.Method)
	assert.JSONEq(t, `"file:/tmp/tag.bin"`, string(removed.Params))
}
