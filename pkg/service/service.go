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
	"errors"
	"fmt"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/OpenTag3D/opentag3d-core/pkg/database/historydb"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/broker"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/discovery"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/publishers"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	notificationBuffer   = 100
	historyCleanupPeriod = 24 * time.Hour
)

func openHistory(ctx context.Context, cfg *config.Instance, dataDir string) *historydb.HistoryDB {
	if !cfg.HistoryEnabled() {
		log.Info().Msg("history disabled by configuration")
		return nil
	}

	log.Debug().Msg("opening history database")
	db, err := historydb.OpenHistoryDB(ctx, dataDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to open history database, continuing without history")
		return nil
	}
	return db
}

func cleanupHistory(cfg *config.Instance, db database.HistoryDBI) {
	days := cfg.HistoryRetentionDays()
	if days <= 0 {
		log.Debug().Msg("history cleanup disabled (retention set to 0)")
		return
	}

	rows, err := db.Cleanup(days)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("error cleaning up history")
	case rows > 0:
		log.Info().Msgf("deleted %d history entries older than %d days", rows, days)
	default:
		log.Debug().Msg("no old history entries to clean up")
	}
}

// historyMaintenance trims the history on start and then once a day.
func historyMaintenance(ctx context.Context, clock clockwork.Clock, cfg *config.Instance, db database.HistoryDBI) error {
	cleanupHistory(cfg, db)

	ticker := clock.NewTicker(historyCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			cleanupHistory(cfg, db)
		}
	}
}

func startPublishers(cfg *config.Instance, b *broker.Broker) []*publishers.MQTTPublisher {
	active := make([]*publishers.MQTTPublisher, 0)
	for _, pc := range cfg.GetMQTTPublishers() {
		log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", pc.Broker, pc.Topic)

		pub := publishers.NewMQTTPublisher(pc.Broker, pc.Topic, pc.Filter)
		notifs, id := b.Subscribe(notificationBuffer, pub.Methods()...)
		if err := pub.Start(notifs); err != nil {
			log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", pc.Broker)
			b.Unsubscribe(id)
			continue
		}
		active = append(active, pub)
	}
	if len(active) > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", len(active))
	}
	return active
}

// Start runs the daemon in the background. stop cancels it and waits for
// cleanup; done is closed once the daemon has exited on its own or after
// stop.
func Start(cfg *config.Instance, paths helpers.Paths) (stop func() error, done <-chan struct{}, err error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	if err := helpers.EnsureDirectories(paths); err != nil {
		return nil, nil, fmt.Errorf("failed to set up environment: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewRealClock()

	ns := make(chan models.Notification, notificationBuffer)
	notifBroker := broker.NewBroker(ctx, ns)
	notifBroker.Start()

	opts := []tagstate.Option{tagstate.WithConfig(cfg)}
	var history database.HistoryDBI
	if db := openHistory(ctx, cfg, paths.DataDir); db != nil {
		history = db
		opts = append(opts, tagstate.WithHistory(db))
	}
	session := tagstate.NewSession(clock, ns, opts...)

	manager := NewReaderManager(cfg, session, ns)

	log.Info().Msg("starting mDNS discovery service")
	discoveryService := discovery.New(cfg)
	if err := discoveryService.Start(); err != nil {
		log.Error().Err(err).Msg("mDNS discovery failed to start, continuing without discovery")
	}

	apiNotifications, _ := notifBroker.Subscribe(notificationBuffer)
	server := api.NewServer(cfg, session, history, manager, apiNotifications, clock)

	log.Info().Msg("starting publishers")
	activePublishers := startPublishers(cfg, notifBroker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.manage(gctx) })
	g.Go(func() error { return manager.processScans(gctx) })
	g.Go(func() error { return server.Serve(gctx) })
	if history != nil {
		g.Go(func() error { return historyMaintenance(gctx, clock, cfg, history) })
	}

	var runErr error
	doneCh := make(chan struct{})
	go func() {
		runErr = g.Wait()
		if runErr != nil {
			log.Error().Err(runErr).Msg("service stopped with error")
		}
		cancel()
		log.Info().Msg("service context cancelled, running cleanup")

		discoveryService.Stop()
		for _, pub := range activePublishers {
			pub.Stop()
		}
		<-notifBroker.Done()
		if history != nil {
			if err := history.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing history database")
			}
		}

		log.Info().Msg("service cleanup completed")
		close(doneCh)
	}()

	stop = func() error {
		cancel()
		<-doneCh
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		return nil
	}
	return stop, doneCh, nil
}
