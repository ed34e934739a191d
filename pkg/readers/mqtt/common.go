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

package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ClientFactory builds an MQTT client from options. Tests swap it for a
// mock client.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

func DefaultClientFactory(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// ParseMQTTPath splits a reader path such as
// "mqtts://broker:8883/printer/spool" into its broker URL and topic. The
// broker URL keeps the scheme when one was given.
func ParseMQTTPath(path string) (brokerURL, topic string, err error) {
	if path == "" {
		return "", "", errors.New("path cannot be empty")
	}

	urlStr := path
	hasScheme := strings.Contains(path, "://")
	if !hasScheme {
		urlStr = "mqtt://" + path
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse MQTT URL: %w", err)
	}
	if u.Host == "" {
		return "", "", errors.New("broker address (host:port) is required")
	}

	topic = strings.Trim(u.Path, "/")
	if topic == "" {
		return "", "", errors.New("topic is required")
	}

	brokerURL = u.Host
	if hasScheme {
		brokerURL = u.Scheme + "://" + u.Host
	}
	return brokerURL, topic, nil
}

// protocolInfo maps a broker URL onto the tcp or ssl scheme paho expects.
type protocolInfo struct {
	Protocol string
	Address  string
	UseTLS   bool
}

func parseProtocol(brokerURL string) protocolInfo {
	info := protocolInfo{Protocol: "tcp", Address: brokerURL}
	scheme, rest, ok := strings.Cut(brokerURL, "://")
	if !ok {
		return info
	}
	info.Address = rest
	switch strings.ToLower(scheme) {
	case "mqtts", "ssl", "tls":
		info.Protocol = "ssl"
		info.UseTLS = true
	case "ws", "wss":
		info.Protocol = strings.ToLower(scheme)
		info.UseTLS = info.Protocol == "wss"
	}
	return info
}

// NewClientOptions configures a paho client for brokerURL, with a random
// client id under clientIDPrefix and credentials from auth.toml.
func NewClientOptions(brokerURL, clientIDPrefix string) *mqtt.ClientOptions {
	info := parseProtocol(brokerURL)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s", info.Protocol, info.Address))
	opts.SetClientID(clientIDPrefix + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	// initial connect failures are reported to the caller instead
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	creds := config.LookupAuth(config.GetAuthCfg(), brokerURL)
	if creds != nil && creds.Username != "" {
		opts.SetUsername(creds.Username)
		opts.SetPassword(creds.Password)
		log.Debug().Msgf("mqtt: using authentication for %s", info.Address)
	}

	if info.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		log.Debug().Msgf("mqtt: using TLS for %s", info.Address)
	}

	return opts
}
