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

package publishers

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	mqttreader "github.com/OpenTag3D/opentag3d-core/pkg/readers/mqtt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTPublisher forwards notifications to an MQTT broker. Each
// notification's params are published as JSON under <topic>/<method>.
// tag.updated is retained so new subscribers see the current spool.
type MQTTPublisher struct {
	client        mqtt.Client
	clientFactory mqttreader.ClientFactory
	stopCh        chan struct{}
	doneCh        chan struct{}
	broker        string
	topic         string
	filter        []string
}

// NewMQTTPublisher creates a publisher for the given broker and base
// topic. An empty filter publishes every notification.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:        broker,
		topic:         strings.TrimSuffix(topic, "/"),
		filter:        filter,
		clientFactory: mqttreader.DefaultClientFactory,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Methods returns the configured notification filter, for use as a
// broker subscription filter.
func (p *MQTTPublisher) Methods() []string {
	return p.filter
}

// Start connects to the broker and begins publishing notifications
// until Stop is called or the channel is closed.
func (p *MQTTPublisher) Start(notifications <-chan models.Notification) error {
	if p.topic == "" {
		return errors.New("mqtt publisher: topic is required")
	}

	opts := mqttreader.NewClientOptions(p.broker, "opentag3d-publisher-")
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	client := p.clientFactory(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return errors.New("failed to connect to MQTT broker: connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	p.client = client

	log.Info().Msgf("mqtt publisher: publishing to %s (topic: %s)", p.broker, p.topic)

	go p.publishNotifications(notifications)
	return nil
}

// Stop ends the publish loop and disconnects from the broker.
func (p *MQTTPublisher) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}

	if p.client == nil {
		return
	}
	<-p.doneCh
	if p.client.IsConnected() {
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) publishNotifications(notifications <-chan models.Notification) {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return
			}
			if !p.matchesFilter(notif.Method) {
				continue
			}
			if err := p.publish(notif); err != nil {
				log.Error().Err(err).Msgf("mqtt publisher: failed to publish %s", notif.Method)
				continue
			}
			log.Debug().Msgf("mqtt publisher: published %s notification", notif.Method)
		}
	}
}

func (p *MQTTPublisher) publish(notif models.Notification) error {
	payload := []byte(notif.Params)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	retained := notif.Method == models.NotificationTagUpdated

	token := p.client.Publish(p.topic+"/"+notif.Method, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}
