// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for dawsync
// binaries.
//
// Configuration is loaded from a single file specified by either the
// DAWSYNC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production refuses the in-process
// memory transport and memory-only state.
//
// Variable expansion is performed on path and address fields after
// loading: ${HOME}, ${DAWSYNC_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Durations are written the way time.ParseDuration reads them ("5s",
// "10m").
//
// Key exports:
//
//   - [Config] -- master struct with Peer, Sync, Transport, Storage,
//     Assets, Relay
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] and [Config.ValidateRelay] -- joined errors
//     for every problem found
package config
