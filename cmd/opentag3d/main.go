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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/helpers"
	"github.com/OpenTag3D/opentag3d-core/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type flags struct {
	configPath string
	decode     string
	output     string
	version    bool
	debug      bool
	help       bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, *pflag.FlagSet, error) {
	f := &flags{}
	fs := pflag.NewFlagSet(config.AppName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to config.toml (default: user config dir)")
	fs.StringVarP(&f.decode, "decode", "d", "", "decode a hex payload, or @file for a dump file, and exit")
	fs.StringVarP(&f.output, "output", "o", outputYAML, "decode output format: yaml or json")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return nil, fs, fmt.Errorf("invalid arguments: %w", err)
	}
	return f, fs, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	switch {
	case f.help:
		_, _ = fmt.Fprintf(stdout, "Usage of %s:\n%s", config.AppName, fs.FlagUsages())
		return nil
	case f.version:
		_, _ = fmt.Fprintf(stdout, "OpenTag3D Core v%s\n", config.AppVersion)
		return nil
	case f.decode != "":
		return runDecode(f.decode, f.output, stdout)
	}

	return runDaemon(f, stderr)
}

func runDaemon(f *flags, stderr io.Writer) error {
	if f.configPath != "" {
		if err := os.Setenv(config.CfgEnv, f.configPath); err != nil {
			return fmt.Errorf("failed to set config path: %w", err)
		}
	}

	paths := helpers.DefaultPaths()
	err := helpers.InitLogging(paths, []io.Writer{zerolog.ConsoleWriter{Out: stderr}})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	helpers.SetLogLevel(f.debug)

	cfg, err := config.NewConfig(paths.ConfigDir, config.BaseDefaults)
	if err != nil {
		log.Error().Err(err).Msg("error loading config")
		return fmt.Errorf("error loading config: %w", err)
	}
	helpers.SetLogLevel(f.debug || cfg.DebugLogging())
	log.Info().Msgf("config loaded from %s", cfg.Path())

	defer func() {
		if r := recover(); r != nil {
			log.Fatal().Msgf("panic: %v", r)
		}
	}()

	stopSvc, done, err := service.Start(cfg, paths)
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		log.Info().Msgf("received %s, shutting down", sig)
	case <-done:
		log.Warn().Msg("service exited")
	}

	if err := stopSvc(); err != nil {
		return fmt.Errorf("error stopping service: %w", err)
	}
	return nil
}
