// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the pieces every dawsync binary shares: the
// process logger and config loading from a --config flag or the
// DAWSYNC_CONFIG environment variable.
package cli
