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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirectories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setupDirs bool
	}{
		{name: "creates directories", setupDirs: false},
		{name: "works when directories already exist", setupDirs: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			p := Paths{
				ConfigDir: filepath.Join(root, "config", "nested"),
				DataDir:   filepath.Join(root, "data"),
				LogDir:    filepath.Join(root, "logs"),
			}
			if tt.setupDirs {
				require.NoError(t, os.MkdirAll(p.ConfigDir, 0o750))
			}

			require.NoError(t, EnsureDirectories(p))

			for _, dir := range []string{p.ConfigDir, p.DataDir, p.LogDir} {
				info, err := os.Stat(dir)
				require.NoError(t, err)
				assert.True(t, info.IsDir())
				if runtime.GOOS != "windows" && !tt.setupDirs {
					assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
				}
			}
		})
	}
}

func TestEnsureDirectoriesInvalidPath(t *testing.T) {
	t.Parallel()

	err := EnsureDirectories(Paths{
		ConfigDir: t.TempDir(),
		DataDir:   "/proc/invalid\x00path",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create data directory")
}

func TestFindUserDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	appPath := filepath.Join(root, "opentag3d")

	_, ok := findUserDir(appPath)
	assert.False(t, ok)

	require.NoError(t, os.Mkdir(filepath.Join(root, "user"), 0o750))
	dir, ok := findUserDir(appPath)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "user"), dir)
}

func TestInitLogging(t *testing.T) {
	// not parallel, InitLogging replaces the global logger
	orig := log.Logger
	t.Cleanup(func() { log.Logger = orig })

	p := Paths{LogDir: filepath.Join(t.TempDir(), "logs")}
	var buf bytes.Buffer

	require.NoError(t, InitLogging(p, []io.Writer{&buf}))
	log.Info().Msg("hello from test")

	assert.Contains(t, buf.String(), "hello from test")
	assert.FileExists(t, filepath.Join(p.LogDir, "core.log"))
}

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	SetLogLevel(true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	SetLogLevel(false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
