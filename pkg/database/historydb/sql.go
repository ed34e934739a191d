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

package historydb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const historyColumns = `DBID, Time, Source, TagFormat, Material, Color, Payload, Success, Error`

func sqlMigrateUp(db *sql.DB) error {
	if err := database.MigrateUp(db, migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("failed to run history database migrations: %w", err)
	}
	return nil
}

func closeStmt(stmt *sql.Stmt) {
	if err := stmt.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close sql statement")
	}
}

func sqlAddHistory(ctx context.Context, db *sql.DB, entry *database.HistoryEntry) error {
	stmt, err := db.PrepareContext(ctx, `
		insert into History(
			Time, Source, TagFormat, Material, Color, Payload, Success, Error
		) values (?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert statement: %w", err)
	}
	defer closeStmt(stmt)

	res, err := stmt.ExecContext(ctx,
		entry.Time.Unix(),
		entry.Source,
		entry.TagFormat,
		entry.Material,
		entry.Color,
		entry.Payload,
		entry.Success,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to execute history insert: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.DBID = id
	}
	return nil
}

func scanHistory(rows *sql.Rows) ([]database.HistoryEntry, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close sql rows")
		}
	}()

	list := make([]database.HistoryEntry, 0, DefaultLimit)
	for rows.Next() {
		var row database.HistoryEntry
		var timeInt int64
		if err := rows.Scan(
			&row.DBID,
			&timeInt,
			&row.Source,
			&row.TagFormat,
			&row.Material,
			&row.Color,
			&row.Payload,
			&row.Success,
			&row.Error,
		); err != nil {
			return list, fmt.Errorf("failed to scan history row: %w", err)
		}
		row.Time = time.Unix(timeInt, 0)
		list = append(list, row)
	}
	if err := rows.Err(); err != nil {
		return list, fmt.Errorf("error iterating history rows: %w", err)
	}
	return list, nil
}

func sqlRecentHistory(ctx context.Context, db *sql.DB, limit int) ([]database.HistoryEntry, error) {
	q, err := db.PrepareContext(ctx, `
		select `+historyColumns+`
		from History
		order by DBID desc
		limit ?;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare history query statement: %w", err)
	}
	defer closeStmt(q)

	rows, err := q.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanHistory(rows)
}

func sqlAllHistory(ctx context.Context, db *sql.DB) ([]database.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		select `+historyColumns+`
		from History
		order by DBID asc;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanHistory(rows)
}

func sqlCleanupHistory(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `DELETE FROM History WHERE Time < ?;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare history cleanup statement: %w", err)
	}
	defer closeStmt(stmt)

	result, err := stmt.ExecContext(ctx, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to execute history cleanup: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		if _, err := db.ExecContext(ctx, `vacuum;`); err != nil {
			return rowsAffected, fmt.Errorf("cleanup succeeded but vacuum failed: %w", err)
		}
	}

	return rowsAffected, nil
}

type csvRow struct {
	Time      string `csv:"time"`
	Source    string `csv:"source"`
	TagFormat string `csv:"tag_format"`
	Material  string `csv:"material"`
	Color     string `csv:"color"`
	Payload   string `csv:"payload"`
	Error     string `csv:"error"`
	Success   bool   `csv:"success"`
}

func writeCSV(w io.Writer, entries []database.HistoryEntry) error {
	rows := make([]csvRow, len(entries))
	for i, e := range entries {
		rows[i] = csvRow{
			Time:      e.Time.UTC().Format(time.RFC3339),
			Source:    e.Source,
			TagFormat: e.TagFormat,
			Material:  e.Material,
			Color:     e.Color,
			Payload:   e.Payload,
			Error:     e.Error,
			Success:   e.Success,
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write history CSV: %w", err)
	}
	return nil
}
