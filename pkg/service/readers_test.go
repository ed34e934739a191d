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

package service

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/OpenTag3D/opentag3d-core/pkg/testing/mocks"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func coreDump(material string) []byte {
	raw := make([]byte, opentag3d.CoreLength)
	copy(raw, opentag3d.FormatID)
	copy(raw[0x14:], material)
	raw[0x4E] = 44
	return raw
}

func newTestManager(t *testing.T, connect []config.ReadersConnect, rs ...readers.Reader) (
	*ReaderManager, chan models.Notification,
) {
	t.Helper()
	cfg := &config.Instance{}
	cfg.SetReaderConnections(connect)
	ns := make(chan models.Notification, 20)
	session := tagstate.NewSession(clockwork.NewFakeClock(), ns)
	m := NewReaderManager(cfg, session, ns)
	m.drivers = func(*config.Instance) []readers.Reader { return rs }
	return m, ns
}

func drain(ns chan models.Notification) []models.Notification {
	var out []models.Notification
	for {
		select {
		case n := <-ns:
			out = append(out, n)
		default:
			return out
		}
	}
}

func mockDriver(id, device string, connected bool) *mocks.MockReader {
	r := mocks.NewMockReader()
	r.On("Metadata").Return(readers.DriverMetadata{ID: id}).Maybe()
	r.On("IDs").Return([]string{id})
	r.On("Device").Return(device).Maybe()
	r.On("Info").Return(id + " reader").Maybe()
	r.On("Capabilities").Return([]readers.Capability{readers.CapabilityRefresh}).Maybe()
	r.On("Connected").Return(connected).Maybe()
	return r
}

func TestSupportedReaders(t *testing.T) {
	t.Parallel()

	var ids []string
	for _, r := range SupportedReaders(&config.Instance{}) {
		ids = append(ids, r.Metadata().ID)
	}
	assert.ElementsMatch(t, []string{"file", "simpleserial", "mqtt", "acr122pcsc"}, ids)
}

func TestConnect_OpensConfiguredReaders(t *testing.T) {
	t.Parallel()

	fileDev := config.ReadersConnect{Driver: "file", Path: "/tmp/tag.hex"}
	serialDev := config.ReadersConnect{Driver: "simple_serial", Path: "/dev/ttyUSB0"}
	dup := config.ReadersConnect{Driver: "mqtt", Path: "/dev/ttyUSB0"}
	missing := config.ReadersConnect{Driver: "pn532", Path: "/dev/ttyS1"}

	fileReader := mockDriver("file", fileDev.ConnectionString(), true)
	fileReader.On("Open", fileDev, mock.Anything).Return(nil).Once()
	serialReader := mockDriver("simpleserial", serialDev.ConnectionString(), true)
	serialReader.On("Open", serialDev, mock.Anything).Return(nil).Once()
	mqttReader := mockDriver("mqtt", dup.ConnectionString(), true)

	m, ns := newTestManager(t,
		[]config.ReadersConnect{fileDev, serialDev, dup, missing},
		fileReader, serialReader, mqttReader,
	)

	m.connect()
	m.connect()

	rs := m.Readers()
	require.Len(t, rs, 2)
	assert.Equal(t, fileDev.ConnectionString(), rs[0].ID)
	assert.Equal(t, []string{"refresh"}, rs[0].Capabilities)

	added := drain(ns)
	require.Len(t, added, 2)
	assert.Equal(t, models.NotificationReadersAdded, added[0].Method)

	fileReader.AssertExpectations(t)
	serialReader.AssertExpectations(t)
	mqttReader.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
}

func TestConnect_OpenFailureRetried(t *testing.T) {
	t.Parallel()

	dev := config.ReadersConnect{Driver: "file", Path: "/tmp/missing"}
	r := mockDriver("file", dev.ConnectionString(), true)
	r.On("Open", dev, mock.Anything).Return(errors.New("no such file")).Once()
	r.On("Open", dev, mock.Anything).Return(nil).Once()

	m, _ := newTestManager(t, []config.ReadersConnect{dev}, r)
	m.connect()
	assert.Empty(t, m.Readers())
	m.connect()
	assert.Len(t, m.Readers(), 1)
	r.AssertExpectations(t)
}

func TestPrune_RemovesDisconnected(t *testing.T) {
	t.Parallel()

	dev := config.ReadersConnect{Driver: "file", Path: "/tmp/tag"}
	r := mockDriver("file", dev.ConnectionString(), false)
	r.On("Open", dev, mock.Anything).Return(nil).Once()

	m, ns := newTestManager(t, []config.ReadersConnect{dev}, r)
	m.connect()
	drain(ns)

	m.prune()
	assert.Empty(t, m.Readers())

	removed := drain(ns)
	require.Len(t, removed, 1)
	assert.Equal(t, models.NotificationReadersRemoved, removed[0].Method)
	var id string
	require.NoError(t, json.Unmarshal(removed[0].Params, &id))
	assert.Equal(t, dev.ConnectionString(), id)
	r.AssertCalled(t, "Close")

	require.ErrorIs(t, m.session.Refresh(), readers.ErrUnsupported)
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	dev := config.ReadersConnect{Driver: "file", Path: "/tmp/tag"}
	r := mockDriver("file", dev.ConnectionString(), true)
	r.On("Open", dev, mock.Anything).Return(nil).Once()

	m, _ := newTestManager(t, []config.ReadersConnect{dev}, r)
	m.connect()
	m.closeAll()
	assert.Empty(t, m.Readers())
	r.AssertCalled(t, "Close")
}

func TestHandleScan(t *testing.T) {
	t.Parallel()

	t.Run("raw payload", func(t *testing.T) {
		t.Parallel()
		m, ns := newTestManager(t, nil)
		m.handleScan(readers.Scan{Source: "acr122pcsc:", Payload: coreDump("PLA")})
		st := m.session.Snapshot()
		assert.Equal(t, "PLA", st.FilamentMaterial)
		assert.InDelta(t, 220.0, st.RecommendedNozzleTemp, 0.001)
		require.Len(t, drain(ns), 1)
	})

	t.Run("hex text payload with fields", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(t, nil)
		m.handleScan(readers.Scan{
			Source:  "file:/tmp/tag.hex",
			Payload: []byte(hex.EncodeToString(coreDump("PETG")) + "\n"),
			Fields:  map[string]any{"REMAINING": "820"},
		})
		st := m.session.Snapshot()
		assert.Equal(t, "PETG", st.FilamentMaterial)
		assert.InDelta(t, 820.0, st.RemainingFilament, 0.001)
		assert.Equal(t, "file:/tmp/tag.hex", m.session.Response().Source)
	})

	t.Run("fields only", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(t, nil)
		m.handleScan(readers.Scan{Source: "mqtt:x", Fields: map[string]any{"MATERIAL": "ASA"}})
		assert.Equal(t, "ASA", m.session.Snapshot().FilamentMaterial)
	})

	t.Run("rejected inputs leave state", func(t *testing.T) {
		t.Parallel()
		m, ns := newTestManager(t, nil)
		m.handleScan(readers.Scan{Source: "a", Payload: coreDump("PLA")})
		drain(ns)
		before := m.session.Snapshot()

		m.handleScan(readers.Scan{Source: "a", Payload: []byte{0x01, 0x02}})
		m.handleScan(readers.Scan{Source: "a", Fields: map[string]any{"BED_TEMP": "warm"}})
		m.handleScan(readers.Scan{Source: "a", Error: errors.New("crc"), ReaderError: false})
		m.handleScan(readers.Scan{Source: "a", Error: errors.New("unplugged"), ReaderError: true})
		m.handleScan(readers.Scan{Source: "a"})

		assert.Equal(t, before, m.session.Snapshot())
		assert.Empty(t, drain(ns))
	})
}
