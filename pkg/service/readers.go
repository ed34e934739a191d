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
	"context"
	"slices"
	"sort"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/notifications"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/acr122pcsc"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/file"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/mqtt"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/simpleserial"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/rs/zerolog/log"
)

const reconnectInterval = time.Second

// SupportedReaders returns a fresh, unopened instance of every driver.
func SupportedReaders(cfg *config.Instance) []readers.Reader {
	return []readers.Reader{
		file.NewReader(cfg),
		simpleserial.NewReader(cfg),
		mqtt.NewReader(cfg),
		acr122pcsc.NewAcr122Pcsc(cfg),
	}
}

// ReaderManager keeps the configured readers connected and feeds their
// scans into the session.
type ReaderManager struct {
	cfg       *config.Instance
	session   *tagstate.Session
	notify    chan<- models.Notification
	drivers   func(*config.Instance) []readers.Reader
	scans     chan readers.Scan
	connected map[string]readers.Reader
	mu        syncutil.RWMutex
}

func NewReaderManager(
	cfg *config.Instance,
	session *tagstate.Session,
	notify chan<- models.Notification,
) *ReaderManager {
	return &ReaderManager{
		cfg:       cfg,
		session:   session,
		notify:    notify,
		drivers:   SupportedReaders,
		scans:     make(chan readers.Scan, 16),
		connected: make(map[string]readers.Reader),
	}
}

func readerParams(r readers.Reader) models.ReaderParams {
	return models.ReaderParams{
		ID:           r.Device(),
		Driver:       r.Metadata().ID,
		Info:         r.Info(),
		Capabilities: readers.CapabilityNames(r.Capabilities()),
	}
}

// Readers lists the connected readers ordered by connection string.
func (m *ReaderManager) Readers() []models.ReaderParams {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ReaderParams, 0, len(m.connected))
	for _, r := range m.connected {
		out = append(out, readerParams(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *ReaderManager) findDriver(device config.ReadersConnect) readers.Reader {
	want := readers.NormalizeDriverID(device.Driver)
	for _, r := range m.drivers(m.cfg) {
		if slices.ContainsFunc(r.IDs(), func(id string) bool {
			return readers.NormalizeDriverID(id) == want
		}) {
			return r
		}
	}
	return nil
}

// connect opens every configured device that isn't connected yet. A path
// configured for more than one driver is only opened once.
func (m *ReaderManager) connect() {
	paths := make(map[string]string)
	for _, device := range m.cfg.Readers().Connect {
		conn := device.ConnectionString()
		if first, ok := paths[device.Path]; ok && device.Path != "" {
			if first != conn {
				log.Warn().Msgf(
					"device path %s configured for multiple readers (%s and %s), ignoring %s",
					device.Path, first, conn, conn,
				)
			}
			continue
		}
		paths[device.Path] = conn

		m.mu.RLock()
		_, ok := m.connected[conn]
		m.mu.RUnlock()
		if ok {
			continue
		}

		r := m.findDriver(device)
		if r == nil {
			log.Warn().Msgf("no driver for reader: %s", conn)
			continue
		}

		log.Debug().Msgf("connecting to reader: %s", conn)
		if err := r.Open(device, m.scans); err != nil {
			log.Debug().Err(err).Msgf("error opening reader: %s", conn)
			continue
		}

		m.mu.Lock()
		m.connected[conn] = r
		m.mu.Unlock()

		m.session.RegisterReader(r)
		notifications.ReadersAdded(m.notify, readerParams(r))
		log.Info().Msgf("opened reader: %s", conn)
	}
}

// prune drops readers that have lost their device.
func (m *ReaderManager) prune() {
	m.mu.Lock()
	var lost []readers.Reader
	for conn, r := range m.connected {
		if !r.Connected() {
			delete(m.connected, conn)
			lost = append(lost, r)
		}
	}
	m.mu.Unlock()

	for _, r := range lost {
		log.Info().Msgf("pruning disconnected reader: %s", r.Device())
		if err := r.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing disconnected reader")
		}
		m.session.UnregisterReader(r)
		notifications.ReadersRemoved(m.notify, r.Device())
	}
}

func (m *ReaderManager) closeAll() {
	m.mu.Lock()
	rs := make([]readers.Reader, 0, len(m.connected))
	for _, r := range m.connected {
		rs = append(rs, r)
	}
	clear(m.connected)
	m.mu.Unlock()

	for _, r := range rs {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msgf("error closing reader: %s", r.Device())
		}
		m.session.UnregisterReader(r)
	}
}

// manage reconnects readers until the context is done, then closes them.
func (m *ReaderManager) manage(ctx context.Context) error {
	log.Info().Msgf("reader manager started, %d configured", len(m.cfg.Readers().Connect))
	defer m.closeAll()

	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	m.connect()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reader manager shutting down")
			return nil
		case <-ticker.C:
			m.prune()
			m.connect()
		}
	}
}

// processScans applies reader scans to the session one at a time.
func (m *ReaderManager) processScans(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case scan := <-m.scans:
			m.handleScan(scan)
		}
	}
}

func (m *ReaderManager) handleScan(scan readers.Scan) {
	switch {
	case scan.Error != nil && scan.ReaderError:
		log.Error().Err(scan.Error).Str("source", scan.Source).Msg("reader error")
		return
	case scan.Error != nil:
		log.Warn().Err(scan.Error).Str("source", scan.Source).Msg("error reading tag")
		return
	case scan.Removed():
		log.Info().Str("source", scan.Source).Msg("tag removed")
		return
	}

	in := tagstate.Input{Source: scan.Source}
	if len(scan.Fields) > 0 {
		manual, err := opentag3d.ParseManual(scan.Fields)
		if err != nil {
			log.Warn().Err(err).Str("source", scan.Source).Msg("invalid manual fields")
			return
		}
		in.Manual = manual
	}
	if scan.Payload != nil {
		if opentag3d.LooksLikeHex(scan.Payload) {
			in.Payload = string(scan.Payload)
		} else {
			in.Raw = scan.Payload
		}
	}

	if _, _, err := m.session.Apply(in); err != nil {
		log.Warn().Err(err).Str("source", scan.Source).Msg("tag rejected")
	}
}
