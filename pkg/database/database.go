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

package database

import (
	"io"
	"time"
)

// HistoryEntry is one session apply, successful or not.
type HistoryEntry struct {
	Time      time.Time
	Source    string
	TagFormat string
	Material  string
	Color     string
	Payload   string
	Error     string
	DBID      int64
	Success   bool
}

type HistoryDBI interface {
	Add(entry *HistoryEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(limit int) ([]HistoryEntry, error)
	// Cleanup deletes entries older than retentionDays and returns how
	// many were removed.
	Cleanup(retentionDays int) (int64, error)
	ExportCSV(w io.Writer) error
	Close() error
}
