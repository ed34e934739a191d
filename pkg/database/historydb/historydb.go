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

// Package historydb keeps a sqlite log of every tag merge the session
// attempted.
package historydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNullSQL = errors.New("HistoryDB is not connected")

const sqliteConnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// DefaultLimit is the number of entries Recent returns for limit <= 0.
const DefaultLimit = 25

type HistoryDB struct {
	sql   *sql.DB
	ctx   context.Context
	clock clockwork.Clock
	path  string
}

var _ database.HistoryDBI = (*HistoryDB)(nil)

// OpenHistoryDB opens or creates the history database in dataDir and
// brings its schema up to date.
func OpenHistoryDB(ctx context.Context, dataDir string) (*HistoryDB, error) {
	db := &HistoryDB{
		ctx:   ctx,
		clock: clockwork.NewRealClock(),
		path:  filepath.Join(dataDir, config.HistoryDbFile),
	}

	if err := os.MkdirAll(filepath.Dir(db.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}

	sqlInstance, err := sql.Open("sqlite3", db.path+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.sql = sqlInstance

	if err := db.MigrateUp(); err != nil {
		_ = sqlInstance.Close()
		return nil, err
	}
	return db, nil
}

// NewForTesting wraps an existing connection without migrating it.
func NewForTesting(ctx context.Context, sqlDB *sql.DB, clock clockwork.Clock) *HistoryDB {
	return &HistoryDB{sql: sqlDB, ctx: ctx, clock: clock}
}

func (db *HistoryDB) Path() string {
	return db.path
}

func (db *HistoryDB) MigrateUp() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlMigrateUp(db.sql)
}

func (db *HistoryDB) Add(entry *database.HistoryEntry) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	if entry.Time.IsZero() {
		entry.Time = db.clock.Now()
	}
	return sqlAddHistory(db.ctx, db.sql, entry)
}

func (db *HistoryDB) Recent(limit int) ([]database.HistoryEntry, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return sqlRecentHistory(db.ctx, db.sql, limit)
}

func (db *HistoryDB) Cleanup(retentionDays int) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := db.clock.Now().AddDate(0, 0, -retentionDays)
	return sqlCleanupHistory(db.ctx, db.sql, cutoff)
}

func (db *HistoryDB) ExportCSV(w io.Writer) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	entries, err := sqlAllHistory(db.ctx, db.sql)
	if err != nil {
		return err
	}
	return writeCSV(w, entries)
}

func (db *HistoryDB) Close() error {
	if db.sql == nil {
		return nil
	}
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
