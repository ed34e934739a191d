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

// Package mqtt receives OpenTag3D payloads published by a networked tag
// reader. A message on the reader topic is either hex text or a JSON
// object {"payload": "<hex>", "fields": {"TOKEN": value}}. An empty
// message means the spool was removed.
package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers/syncutil"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/readers"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
	RefreshSuffix  = "/refresh"
	RemainSuffix   = "/remaining"
)

type Reader struct {
	client        mqtt.Client
	cfg           *config.Instance
	scanCh        chan<- readers.Scan
	clientFactory ClientFactory
	device        config.ReadersConnect
	broker        string
	topic         string
	mu            syncutil.RWMutex
}

func NewReader(cfg *config.Instance) *Reader {
	return &Reader{
		cfg:           cfg,
		clientFactory: DefaultClientFactory,
	}
}

func (*Reader) Metadata() readers.DriverMetadata {
	return readers.DriverMetadata{
		ID:          "mqtt",
		Description: "MQTT networked tag reader",
	}
}

func (*Reader) IDs() []string {
	return []string{"mqtt"}
}

type message struct {
	Fields  map[string]any `json:"fields"`
	Payload string         `json:"payload"`
}

// parseMessage turns a message body into a scan. ok is false for bodies
// that should be ignored.
func parseMessage(src string, body []byte) (scan readers.Scan, ok bool) {
	body = bytes.TrimSpace(body)
	scan.Source = src

	if len(body) == 0 {
		return scan, true
	}

	if body[0] == '{' {
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			scan.Error = fmt.Errorf("invalid JSON message: %w", err)
			return scan, true
		}
		if msg.Payload == "" && len(msg.Fields) == 0 {
			return scan, false
		}
		if msg.Payload != "" {
			scan.Payload = []byte(msg.Payload)
		}
		scan.Fields = msg.Fields
		return scan, true
	}

	if !opentag3d.LooksLikeHex(body) {
		scan.Error = errors.New("message is neither hex text nor JSON")
		return scan, true
	}
	scan.Payload = body
	return scan, true
}

func (r *Reader) Open(device config.ReadersConnect, scanQueue chan<- readers.Scan) error {
	if err := readers.CheckDriver(r, device); err != nil {
		return err
	}

	broker, topic, err := ParseMQTTPath(device.Path)
	if err != nil {
		return fmt.Errorf("failed to parse MQTT path: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.broker = broker
	r.topic = topic
	r.scanCh = scanQueue
	r.mu.Unlock()

	opts := NewClientOptions(broker, "opentag3d-reader-")

	// subscribing in OnConnect re-subscribes after a reconnect
	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Msgf("mqtt reader: connected to %s", broker)
		token := client.Subscribe(topic, 1, r.handleMessage)
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msgf("mqtt reader: failed to subscribe to %s", topic)
			scanQueue <- readers.Scan{
				Source:      device.ConnectionString(),
				Error:       fmt.Errorf("failed to subscribe to topic: %w", token.Error()),
				ReaderError: true,
			}
			return
		}
		log.Info().Msgf("mqtt reader: subscribed to topic %s", topic)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt reader: connection lost")
	}

	client := r.clientFactory(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return errors.New("failed to connect to MQTT broker: connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()

	log.Info().Msgf("mqtt reader: opened connection to %s (topic: %s)", broker, topic)
	return nil
}

func (r *Reader) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	r.mu.RLock()
	src := r.device.ConnectionString()
	ch := r.scanCh
	r.mu.RUnlock()

	scan, ok := parseMessage(src, msg.Payload())
	if !ok {
		log.Debug().Msg("mqtt reader: ignoring empty message")
		return
	}
	log.Debug().Msgf("mqtt reader: received %d byte message", len(msg.Payload()))
	ch <- scan
}

func (r *Reader) Close() error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()

	if client != nil && client.IsConnected() {
		log.Debug().Msg("mqtt reader: disconnecting")
		client.Disconnect(250)
	}
	return nil
}

func (r *Reader) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device.ConnectionString()
}

func (r *Reader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client != nil && r.client.IsConnected()
}

func (r *Reader) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("MQTT: %s", r.topic)
}

func (*Reader) Capabilities() []readers.Capability {
	return []readers.Capability{
		readers.CapabilityRefresh,
		readers.CapabilityUpdateRemaining,
	}
}

func (r *Reader) publish(suffix, body string) error {
	r.mu.RLock()
	client := r.client
	topic := r.topic + suffix
	r.mu.RUnlock()

	if client == nil {
		return readers.ErrNotConnected
	}
	token := client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Refresh publishes an empty message on <topic>/refresh.
func (r *Reader) Refresh() error {
	return r.publish(RefreshSuffix, "")
}

// UpdateRemaining publishes the weight in grams on <topic>/remaining.
func (r *Reader) UpdateRemaining(grams float64) error {
	return r.publish(RemainSuffix, strconv.FormatFloat(grams, 'f', -1, 64))
}
