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

package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/adrg/xdg"
)

// Paths are the directories the service reads and writes.
type Paths struct {
	ConfigDir string
	DataDir   string
	LogDir    string
}

var (
	userDirCache       string
	userDirCacheExists bool
	userDirOnce        sync.Once
)

// HasUserDir checks if a "user" directory exists next to the binary, or
// next to the path in OPENTAG3D_APP, for a portable install. The result is
// cached after the first call.
func HasUserDir() (string, bool) {
	userDirOnce.Do(func() {
		userDirCache, userDirCacheExists = findUserDir(os.Getenv(config.AppEnv))
	})
	return userDirCache, userDirCacheExists
}

func findUserDir(appPath string) (string, bool) {
	if appPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", false
		}
		appPath = exe
	}

	userDir := filepath.Join(filepath.Dir(appPath), config.UserDir)
	info, err := os.Stat(userDir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return userDir, true
}

// DefaultPaths returns the XDG directories for the app, or the portable
// user directory when one exists.
func DefaultPaths() Paths {
	if v, ok := HasUserDir(); ok {
		return Paths{
			ConfigDir: v,
			DataDir:   v,
			LogDir:    filepath.Join(v, "logs"),
		}
	}
	return Paths{
		ConfigDir: filepath.Join(xdg.ConfigHome, config.AppName),
		DataDir:   filepath.Join(xdg.DataHome, config.AppName),
		LogDir:    filepath.Join(xdg.StateHome, config.AppName),
	}
}

// EnsureDirectories creates every directory in p.
func EnsureDirectories(p Paths) error {
	for _, d := range []struct{ name, path string }{
		{"config", p.ConfigDir},
		{"data", p.DataDir},
		{"log", p.LogDir},
	} {
		if d.path == "" {
			continue
		}
		if err := os.MkdirAll(d.path, 0o750); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", d.name, err)
		}
	}
	return nil
}
