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

// Package acr122pcsc reads OpenTag3D tags on NTAG cards through an ACR122
// (or any PC/SC reader that supports the ACS pseudo APDUs). The card
// memory is read page by page from address 0 so the result uses the
// full-dump layout. NDEF formatted tags holding an application/opentag3d
// record are unwrapped first.
package acr122pcsc

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/shared/ndef"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
)

const (
	pageSize     = 4
	dataAreaAddr = 0x10
	ccAddr       = 0x0C
	ccMagic      = 0xE1
	// NTAG216 has 231 pages, nothing larger is expected
	maxPages     = 231
	pollInterval = 250 * time.Millisecond
	closeTimeout = time.Second
	readerPrefix = "ACS ACR122"
)

var (
	apduGetUID  = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
	statusOK    = []byte{0x90, 0x00}
	ErrNoReader = errors.New("pcsc reader not found")
)

// ScardCard abstracts the scard.Card for testing.
type ScardCard interface {
	Status() (*scard.CardStatus, error)
	Transmit([]byte) ([]byte, error)
	Disconnect(scard.Disposition) error
}

// ScardContext abstracts the scard.Context for testing.
type ScardContext interface {
	ListReaders() ([]string, error)
	GetStatusChange([]scard.ReaderState, time.Duration) error
	Connect(string, scard.ShareMode, scard.Protocol) (ScardCard, error)
	Release() error
}

type realScardContext struct {
	ctx *scard.Context
}

func (r *realScardContext) ListReaders() ([]string, error) {
	readerList, err := r.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	return readerList, nil
}

func (r *realScardContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	if err := r.ctx.GetStatusChange(rs, timeout); err != nil {
		return fmt.Errorf("failed to get status change: %w", err)
	}
	return nil
}

func (r *realScardContext) Connect(
	reader string,
	mode scard.ShareMode,
	proto scard.Protocol,
) (ScardCard, error) {
	card, err := r.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reader: %w", err)
	}
	return card, nil
}

func (r *realScardContext) Release() error {
	if err := r.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release context: %w", err)
	}
	return nil
}

type ScardContextFactory func() (ScardContext, error)

func DefaultScardContextFactory() (ScardContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish scard context: %w", err)
	}
	return &realScardContext{ctx: ctx}, nil
}

type ACR122PCSC struct {
	ctx            ScardContext
	cfg            *config.Instance
	contextFactory ScardContextFactory
	refresh        chan struct{}
	done           chan struct{}
	device         config.ReadersConnect
	name           string
	polling        bool
	mu             syncutil.RWMutex
}

func NewAcr122Pcsc(cfg *config.Instance) *ACR122PCSC {
	return &ACR122PCSC{
		cfg:            cfg,
		contextFactory: DefaultScardContextFactory,
	}
}

func (*ACR122PCSC) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          "acr122pcsc",
		Description: "ACR122 NFC reader via PC/SC",
	}
}

func (*ACR122PCSC) IDs() []string {
	return []string{"acr122pcsc", "acr122_pcsc"}
}

// pickReader returns the configured reader name, or the first ACR122 when
// the path is empty.
func pickReader(available []string, path string) (string, error) {
	if path != "" {
		if slices.Contains(available, path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoReader, path)
	}
	for _, name := range available {
		if strings.HasPrefix(name, readerPrefix) {
			return name, nil
		}
	}
	return "", ErrNoReader
}

func (r *ACR122PCSC) Open(device config.ReadersConnect, iq chan<- readers.Scan) error {
	if err := readers.CheckDriver(r, device); err != nil {
		return err
	}

	ctx, err := r.contextFactory()
	if err != nil {
		return fmt.Errorf("failed to establish scard context: %w", err)
	}

	available, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return fmt.Errorf("failed to list scard readers: %w", err)
	}

	name, err := pickReader(available, device.Path)
	if err != nil {
		_ = ctx.Release()
		return err
	}

	r.mu.Lock()
	r.ctx = ctx
	r.device = device
	r.name = name
	r.polling = true
	r.refresh = make(chan struct{}, 1)
	r.done = make(chan struct{})
	r.mu.Unlock()

	log.Info().Msgf("acr122pcsc: opened reader %s", name)
	go r.poll(ctx, iq, r.done)

	return nil
}

func (r *ACR122PCSC) isPolling() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.polling
}

func (r *ACR122PCSC) stop() {
	r.mu.Lock()
	r.polling = false
	r.mu.Unlock()
}

func (r *ACR122PCSC) poll(ctx ScardContext, iq chan<- readers.Scan, done chan struct{}) {
	defer close(done)
	src := r.device.ConnectionString()

	for r.isPolling() {
		rls, err := ctx.ListReaders()
		if err != nil || !slices.Contains(rls, r.name) {
			if !r.isPolling() {
				return
			}
			log.Warn().Err(err).Msgf("acr122pcsc: reader %s disappeared", r.name)
			iq <- readers.Scan{
				Source:      src,
				Error:       fmt.Errorf("%w: %s", ErrNoReader, r.name),
				ReaderError: true,
			}
			r.stop()
			return
		}

		rs := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StateUnaware}}
		if err := ctx.GetStatusChange(rs, pollInterval); err != nil {
			log.Trace().Err(err).Msg("acr122pcsc: status change")
			continue
		}
		if rs[0].EventState&scard.StatePresent == 0 {
			time.Sleep(pollInterval / 5)
			continue
		}

		emitted := r.readAndEmit(ctx, iq, src)
		if !r.waitRemoval(ctx, iq, src) {
			return
		}
		if emitted {
			iq <- readers.Scan{Source: src}
		}
	}
}

// readAndEmit reads the present card and sends the result. It reports
// whether a payload was sent.
func (r *ACR122PCSC) readAndEmit(ctx ScardContext, iq chan<- readers.Scan, src string) bool {
	payload, err := r.readPresent(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("acr122pcsc: failed to read tag")
		iq <- readers.Scan{Source: src, Error: err}
		return false
	}
	iq <- readers.Scan{Source: src, Payload: payload}
	return true
}

// waitRemoval blocks until the card leaves the field, re-reading it when a
// refresh is requested. It returns false when the reader was closed.
func (r *ACR122PCSC) waitRemoval(ctx ScardContext, iq chan<- readers.Scan, src string) bool {
	for {
		if !r.isPolling() {
			return false
		}

		select {
		case <-r.refresh:
			log.Debug().Msg("acr122pcsc: refreshing present tag")
			r.readAndEmit(ctx, iq, src)
		default:
		}

		rs := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StatePresent}}
		err := ctx.GetStatusChange(rs, pollInterval)
		if errors.Is(err, scard.ErrTimeout) {
			continue
		}
		if err != nil {
			log.Debug().Err(err).Msg("acr122pcsc: status change while waiting for removal")
			return r.isPolling()
		}
		if rs[0].EventState&scard.StatePresent == 0 {
			return true
		}
	}
}

func (r *ACR122PCSC) readPresent(ctx ScardContext) ([]byte, error) {
	card, err := ctx.Connect(r.name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to card: %w", err)
	}
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Debug().Err(err).Msg("acr122pcsc: disconnect card")
		}
	}()

	if status, err := card.Status(); err == nil {
		log.Debug().Msgf("acr122pcsc: atr %s", hex.EncodeToString(status.Atr))
	}

	return ReadTag(card)
}

func transmit(card ScardCard, apdu []byte) ([]byte, error) {
	res, err := card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("failed to transmit: %w", err)
	}
	if len(res) < len(statusOK) || !bytes.HasSuffix(res, statusOK) {
		return nil, fmt.Errorf("unexpected card response: %x", res)
	}
	return res[:len(res)-len(statusOK)], nil
}

func readPage(card ScardCard, page int) ([]byte, error) {
	data, err := transmit(card, []byte{0xFF, 0xB0, 0x00, byte(page), pageSize})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	if len(data) < pageSize {
		return nil, fmt.Errorf("page %d: short read of %d bytes", page, len(data))
	}
	return data[:pageSize], nil
}

// isNDEF reports whether the capability container marks the tag as NDEF
// formatted.
func isNDEF(data []byte) bool {
	return len(data) > ccAddr && data[ccAddr] == ccMagic
}

// complete reports whether enough memory was read to decode the tag.
func complete(data []byte) bool {
	if len(data) < opentag3d.FullDumpLength {
		return false
	}
	if !isNDEF(data) {
		return true
	}
	_, err := ndef.FindMessage(data[dataAreaAddr:])
	return !errors.Is(err, ndef.ErrInvalidNDEF)
}

// ReadTag reads card memory from page 0 and returns the OpenTag3D record
// bytes. For an NDEF tag holding an application/opentag3d record that's
// the record payload, otherwise the memory dump itself.
func ReadTag(card ScardCard) ([]byte, error) {
	if uid, err := transmit(card, apduGetUID); err == nil {
		log.Debug().Msgf("acr122pcsc: uid %x", uid)
	}

	data := make([]byte, 0, opentag3d.FullDumpLength)
	for page := 0; page < maxPages && !complete(data); page++ {
		chunk, err := readPage(card, page)
		if err != nil {
			if len(data) >= opentag3d.FullDumpLength {
				break
			}
			return nil, err
		}
		data = append(data, chunk...)
	}

	if isNDEF(data) {
		record, err := ndef.ExtractOpenTag3D(data[dataAreaAddr:])
		if err == nil {
			return record, nil
		}
		log.Debug().Err(err).Msg("acr122pcsc: no OpenTag3D NDEF record, using raw memory")
	}

	return data, nil
}

func (r *ACR122PCSC) Close() error {
	r.mu.Lock()
	r.polling = false
	ctx := r.ctx
	done := r.done
	r.ctx = nil
	r.mu.Unlock()

	if ctx == nil {
		return nil
	}

	err := ctx.Release()
	if done != nil {
		select {
		case <-done:
		case <-time.After(closeTimeout):
			log.Warn().Msg("acr122pcsc: poll loop did not stop")
		}
	}
	if err != nil {
		return fmt.Errorf("failed to release scard context: %w", err)
	}
	return nil
}

func (r *ACR122PCSC) Device() string {
	return r.device.ConnectionString()
}

func (r *ACR122PCSC) Connected() bool {
	return r.isPolling()
}

func (r *ACR122PCSC) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (*ACR122PCSC) Capabilities() []readers.Capability {
	return []readers.Capability{readers.CapabilityRefresh}
}

// Refresh re-reads the card currently on the reader.
func (r *ACR122PCSC) Refresh() error {
	r.mu.RLock()
	ch := r.refresh
	r.mu.RUnlock()
	if ch == nil {
		return readers.ErrNotConnected
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}
