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

// Package tagstate owns the session TagState. Every input, whether a
// reader scan or an API request, goes through Session.Apply, which merges
// it into the state one call at a time.
package tagstate

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/notifications"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Input is one merge request. Payload is hex text and wins over Raw when
// both are set. With neither, only the manual fields are applied.
type Input struct {
	Manual  opentag3d.Update
	Source  string
	Payload string
	Raw     []byte
}

type Option func(*Session)

// WithConfig enables the filament settings: profile auto apply and
// forwarding remaining filament changes to the reader.
func WithConfig(cfg *config.Instance) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithHistory records every apply, successful or not, while history is
// enabled in the config.
func WithHistory(db database.HistoryDBI) Option {
	return func(s *Session) {
		s.history = db
	}
}

// Session holds the TagState for the life of the process. It's never
// reset, a removed spool keeps its last known values.
//
// LOCKING RULES: mu guards the state and the reader set. Notifications,
// reader hooks and history writes happen after it's released.
type Session struct {
	clock     clockwork.Clock
	notify    chan<- models.Notification
	cfg       *config.Instance
	history   database.HistoryDBI
	readers   map[string]readers.Reader
	active    readers.Reader
	updatedAt time.Time
	source    string
	state     opentag3d.State
	mu        syncutil.RWMutex
}

func NewSession(clock clockwork.Clock, notify chan<- models.Notification, opts ...Option) *Session {
	s := &Session{
		clock:   clock,
		notify:  notify,
		readers: make(map[string]readers.Reader),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (in *Input) raw() ([]byte, error) {
	if in.Payload != "" {
		return opentag3d.ParseHexPayload(in.Payload)
	}
	return in.Raw, nil
}

// Apply merges the input into the state. On error the state is left as it
// was. changed reports whether any field value differs afterwards, a
// tag.updated notification is only sent in that case.
func (s *Session) Apply(in Input) (state opentag3d.State, changed bool, err error) {
	raw, err := in.raw()
	if err != nil {
		s.record(in, nil, opentag3d.State{}, err)
		return s.Snapshot(), false, err
	}

	s.mu.Lock()
	current := s.state
	var next opentag3d.State
	if raw != nil {
		next, err = opentag3d.MergeRaw(current, raw, in.Manual)
	} else {
		next, err = opentag3d.Merge(current, nil, in.Manual)
	}
	if err != nil {
		s.mu.Unlock()
		log.Warn().Err(err).Str("source", in.Source).Msg("tag merge failed")
		s.record(in, raw, current, err)
		return current, false, err
	}

	diff := opentag3d.Changed(current, next)
	s.state = next
	s.updatedAt = s.clock.Now()
	s.source = in.Source
	if r, ok := s.readers[in.Source]; ok && raw != nil {
		s.active = r
	}
	resp := s.responseLocked()
	hookReader := s.active
	s.mu.Unlock()

	s.record(in, raw, next, nil)

	if len(diff) == 0 {
		log.Debug().Str("source", in.Source).Msg("tag merge changed nothing")
		return next, false, nil
	}

	log.Info().
		Str("source", in.Source).
		Strs("fields", fieldNames(diff)).
		Msgf("tag state updated: %s", next.FilamentMaterial)

	if s.notify != nil {
		notifications.TagUpdated(s.notify, resp)
	}
	s.applyProfile(&next)
	s.forwardRemaining(hookReader, in, diff, next.RemainingFilament)

	return next, true, nil
}

func fieldNames(fs []opentag3d.Field) []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name()
	}
	return names
}

func (s *Session) applyProfile(st *opentag3d.State) {
	if s.cfg == nil || !s.cfg.AutoApplyProfile() || s.notify == nil {
		return
	}
	params := models.FilamentApplyParams{Material: st.FilamentMaterial}
	if st.RecommendedNozzleTemp > 0 {
		params.NozzleTemp = st.RecommendedNozzleTemp
	}
	if st.RecommendedBedTemp > 0 {
		params.BedTemp = st.RecommendedBedTemp
	}
	if params.NozzleTemp == 0 && params.BedTemp == 0 {
		log.Debug().Msg("no temperature targets to apply")
		return
	}
	notifications.FilamentApply(s.notify, params)
}

// forwardRemaining sends a manually changed remaining filament value to
// the reader. Values coming from the reader itself aren't echoed back.
func (s *Session) forwardRemaining(r readers.Reader, in Input, diff []opentag3d.Field, grams float64) {
	if s.cfg == nil || !s.cfg.UpdateRemaining() || r == nil {
		return
	}
	if !in.Manual.Has(opentag3d.FieldRemainingFilament) ||
		!slices.Contains(diff, opentag3d.FieldRemainingFilament) {
		return
	}
	if in.Source == r.Device() {
		return
	}
	err := readers.UpdateRemaining(r, grams)
	switch {
	case errors.Is(err, readers.ErrUnsupported):
		log.Debug().Msgf("reader %s can't store remaining filament", r.Device())
	case err != nil:
		log.Warn().Err(err).Msgf("failed to update remaining filament on %s", r.Device())
	}
}

func (s *Session) record(in Input, raw []byte, st opentag3d.State, applyErr error) {
	if s.history == nil || (s.cfg != nil && !s.cfg.HistoryEnabled()) {
		return
	}
	entry := &database.HistoryEntry{
		Time:    s.clock.Now(),
		Source:  in.Source,
		Payload: hex.EncodeToString(raw),
		Success: applyErr == nil,
	}
	if raw == nil && in.Payload != "" {
		entry.Payload = in.Payload
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	} else {
		entry.TagFormat = st.TagFormat
		entry.Material = st.FilamentMaterial
		entry.Color = st.FilamentColor
	}
	if err := s.history.Add(entry); err != nil {
		log.Error().Err(err).Msg("failed to record history entry")
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() opentag3d.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) responseLocked() models.TagResponse {
	resp := models.TagResponse{State: s.state, Source: s.source}
	if !s.updatedAt.IsZero() {
		ts := s.updatedAt
		resp.UpdatedAt = &ts
	}
	return resp
}

// Response returns the snapshot with its update time and source.
func (s *Session) Response() models.TagResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseLocked()
}

// RegisterReader makes a reader available to the refresh and remaining
// hooks. The first registered reader is the hook target until another
// reader delivers a tag.
func (s *Session) RegisterReader(r readers.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[r.Device()] = r
	if s.active == nil {
		s.active = r
	}
}

func (s *Session) UnregisterReader(r readers.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readers, r.Device())
	if s.active != r {
		return
	}
	s.active = nil
	for _, other := range s.readers {
		s.active = other
		break
	}
}

func (s *Session) hookReader() (readers.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, fmt.Errorf("%w: no reader registered", readers.ErrUnsupported)
	}
	return s.active, nil
}

// Refresh asks the active reader to read the present tag again.
func (s *Session) Refresh() error {
	r, err := s.hookReader()
	if err != nil {
		return err
	}
	if err := readers.Refresh(r); err != nil {
		return fmt.Errorf("refresh on %s: %w", r.Device(), err)
	}
	return nil
}

// UpdateRemaining asks the active reader to store a new remaining
// filament weight.
func (s *Session) UpdateRemaining(grams float64) error {
	r, err := s.hookReader()
	if err != nil {
		return err
	}
	if err := readers.UpdateRemaining(r, grams); err != nil {
		return fmt.Errorf("update remaining on %s: %w", r.Device(), err)
	}
	return nil
}
