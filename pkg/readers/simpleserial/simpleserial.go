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

// Package simpleserial reads OpenTag3D payloads from a microcontroller
// speaking a tab separated line protocol over a serial port:
//
//	TAG\t<hex payload>[\tKEY=VALUE...]
//	SET\tKEY=VALUE[\tKEY=VALUE...]
//	REMOVED
//
// The reader writes REFRESH and REMAINING\t<grams> lines back to the
// device.
package simpleserial

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers/testutils"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	BaudRate    = 115200
	readTimeout = 100 * time.Millisecond
	maxLineLen  = 4096
)

var errLineTooLong = errors.New("serial line too long")

type SimpleSerialReader struct {
	port        testutils.SerialPort
	portFactory testutils.SerialPortFactory
	cfg         *config.Instance
	device      config.ReadersConnect
	path        string
	polling     bool
	hasTag      bool
	mu          syncutil.RWMutex
	writeMu     syncutil.Mutex
}

func NewReader(cfg *config.Instance) *SimpleSerialReader {
	return &SimpleSerialReader{
		cfg:         cfg,
		portFactory: testutils.DefaultSerialPortFactory,
	}
}

func (*SimpleSerialReader) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          "simpleserial",
		Description: "Line protocol serial tag reader",
	}
}

func (*SimpleSerialReader) IDs() []string {
	return []string{"simpleserial", "simple_serial"}
}

// parseLine turns one protocol line into a scan. A nil scan means the line
// was empty or not part of the protocol.
func (r *SimpleSerialReader) parseLine(line string) (*readers.Scan, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil //nolint:nilnil // empty line isn't an error
	}

	cmd, args, _ := strings.Cut(line, "\t")
	src := r.device.ConnectionString()

	switch strings.ToUpper(cmd) {
	case "TAG":
		hexText, rest, _ := strings.Cut(args, "\t")
		hexText = strings.TrimSpace(hexText)
		if hexText == "" {
			return nil, errors.New("TAG line without payload")
		}
		fields, err := parseFields(rest)
		if err != nil {
			return nil, err
		}
		return &readers.Scan{
			Source:  src,
			Payload: []byte(hexText),
			Fields:  fields,
		}, nil
	case "SET":
		fields, err := parseFields(args)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, errors.New("SET line without fields")
		}
		return &readers.Scan{Source: src, Fields: fields}, nil
	case "REMOVED":
		return &readers.Scan{Source: src}, nil
	default:
		log.Debug().Str("line", line).Msg("ignoring unknown serial line")
		return nil, nil //nolint:nilnil // unknown commands are skipped
	}
}

func parseFields(args string) (map[string]any, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	fields := make(map[string]any)
	for _, kv := range strings.Split(args, "\t") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, expected KEY=VALUE", kv)
		}
		fields[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return fields, nil
}

func (r *SimpleSerialReader) Open(device config.ReadersConnect, iq chan<- readers.Scan) error {
	if err := readers.CheckDriver(r, device); err != nil {
		return err
	}

	path := device.Path
	if runtime.GOOS != "windows" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("failed to stat device path %s: %w", path, err)
		}
	}

	port, err := r.portFactory(path, &serial.Mode{BaudRate: BaudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	r.mu.Lock()
	r.port = port
	r.device = device
	r.path = path
	r.polling = true
	r.mu.Unlock()

	go r.poll(port, iq)

	return nil
}

func (r *SimpleSerialReader) isPolling() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.polling
}

func (r *SimpleSerialReader) poll(port testutils.SerialPort, iq chan<- readers.Scan) {
	var lineBuf []byte
	buf := make([]byte, 1024)

	for r.isPolling() {
		n, err := port.Read(buf)
		if err != nil {
			if !r.isPolling() {
				return
			}
			log.Error().Err(err).Msg("failed to read from serial port")
			iq <- readers.Scan{
				Source:      r.device.ConnectionString(),
				Error:       err,
				ReaderError: true,
			}
			if err := r.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close serial port")
			}
			return
		}

		for i := range n {
			if buf[i] != '\n' {
				lineBuf = append(lineBuf, buf[i])
				if len(lineBuf) > maxLineLen {
					log.Warn().Err(errLineTooLong).Msg("dropping serial line")
					lineBuf = nil
				}
				continue
			}

			line := string(lineBuf)
			lineBuf = nil

			scan, err := r.parseLine(line)
			if err != nil {
				log.Warn().Err(err).Str("line", line).Msg("failed to parse serial line")
				iq <- readers.Scan{Source: r.device.ConnectionString(), Error: err}
				continue
			}
			if scan == nil {
				continue
			}
			if scan.Removed() && !r.hasTag {
				continue
			}
			r.hasTag = !scan.Removed()
			iq <- *scan
		}
	}
}

func (r *SimpleSerialReader) Close() error {
	r.mu.Lock()
	r.polling = false
	port := r.port
	r.mu.Unlock()
	if port != nil {
		if err := port.Close(); err != nil {
			return fmt.Errorf("failed to close serial port: %w", err)
		}
	}
	return nil
}

func (r *SimpleSerialReader) Device() string {
	return r.device.ConnectionString()
}

func (r *SimpleSerialReader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.polling && r.port != nil
}

func (r *SimpleSerialReader) Info() string {
	return r.path
}

func (*SimpleSerialReader) Capabilities() []readers.Capability {
	return []readers.Capability{
		readers.CapabilityRefresh,
		readers.CapabilityUpdateRemaining,
	}
}

func (r *SimpleSerialReader) send(line string) error {
	r.mu.RLock()
	port := r.port
	r.mu.RUnlock()
	if port == nil {
		return readers.ErrNotConnected
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := port.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	return nil
}

// Refresh asks the device to re-read the tag.
func (r *SimpleSerialReader) Refresh() error {
	return r.send("REFRESH")
}

// UpdateRemaining sends the new remaining filament weight to the device.
func (r *SimpleSerialReader) UpdateRemaining(grams float64) error {
	return r.send("REMAINING\t" + strconv.FormatFloat(grams, 'f', -1, 64))
}
