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

// Package file reads OpenTag3D payloads from a dump file. The file holds
// either hex text or the raw record bytes, and is re-read every time it
// changes. Emptying the file removes the tag.
package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

type Reader struct {
	cfg     *config.Instance
	watcher *fsnotify.Watcher
	iq      chan<- readers.Scan
	done    chan struct{}
	device  config.ReadersConnect
	path    string
	last    []byte
	mu      syncutil.Mutex
	polling bool
}

func NewReader(cfg *config.Instance) *Reader {
	return &Reader{
		cfg: cfg,
	}
}

func (*Reader) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          "file",
		Description: "Tag dump file reader",
	}
}

func (*Reader) IDs() []string {
	return []string{"file"}
}

func (r *Reader) Open(device config.ReadersConnect, iq chan<- readers.Scan) error {
	if err := readers.CheckDriver(r, device); err != nil {
		return err
	}

	path := device.Path
	if !filepath.IsAbs(path) {
		return errors.New("invalid device path, must be absolute")
	}

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); err != nil {
		return fmt.Errorf("failed to stat parent directory: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		//nolint:gosec // path comes from the user's reader config
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		_ = f.Close()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors replace files on save, so the directory is watched
	if err := watcher.Add(parent); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", parent, err)
	}

	r.mu.Lock()
	r.device = device
	r.path = filepath.Clean(path)
	r.iq = iq
	r.watcher = watcher
	r.done = make(chan struct{})
	r.polling = true
	r.last = nil
	r.mu.Unlock()

	go r.watch(watcher, r.done)

	r.emit(false)
	return nil
}

func (r *Reader) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				r.emit(false)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(watchErr).Msg("error in file reader watcher")
		}
	}
}

// emit reads the file and sends a scan when the contents changed, or
// always when force is set.
func (r *Reader) emit(force bool) {
	scan, ok := r.read(force)
	if ok {
		r.iq <- scan
	}
}

func (r *Reader) read(force bool) (readers.Scan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.polling {
		return readers.Scan{}, false
	}

	src := r.device.ConnectionString()
	contents, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		contents = nil
	} else if err != nil {
		return readers.Scan{Source: src, Error: err, ReaderError: true}, true
	}

	payload := normalize(contents)
	if !force && bytes.Equal(payload, r.last) {
		return readers.Scan{}, false
	}

	if len(payload) == 0 {
		if r.last == nil {
			return readers.Scan{}, false
		}
		log.Debug().Msg("file is empty, removing tag")
		r.last = nil
		return readers.Scan{Source: src}, true
	}

	r.last = payload
	log.Debug().Msgf("new tag payload from file: %d bytes", len(payload))
	return readers.Scan{Source: src, Payload: payload}, true
}

// normalize trims hex text and leaves binary dumps untouched.
func normalize(contents []byte) []byte {
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 {
		return nil
	}
	if opentag3d.LooksLikeHex(trimmed) {
		return trimmed
	}
	return contents
}

func (r *Reader) Close() error {
	r.mu.Lock()
	r.polling = false
	watcher := r.watcher
	done := r.done
	r.watcher = nil
	r.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}

func (r *Reader) Device() string {
	return r.device.ConnectionString()
}

func (r *Reader) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polling
}

func (r *Reader) Info() string {
	return r.path
}

func (*Reader) Capabilities() []readers.Capability {
	return []readers.Capability{readers.CapabilityRefresh}
}

// Refresh re-reads the file and sends its contents even if unchanged.
func (r *Reader) Refresh() error {
	r.emit(true)
	return nil
}
