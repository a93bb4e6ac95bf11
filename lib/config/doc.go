// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the cask
// daemon.
//
// Configuration is loaded from a single file specified by either the
// CASK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search; when no file
// is given, [Default] supplies a working loopback configuration so a
// bare `caskd` can run out of the user's data directory.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CASK_DATA}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- daemon struct with Paths, Server, Engine, Sweep
//   - [Default] -- returns a Config with loopback defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other cask packages.
package config
