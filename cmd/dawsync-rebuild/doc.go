// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dawsync-rebuild replays an operation log offline and writes the
// resulting project snapshot. Operations come from a peer's SQLite log
// (--oplog) or a JSON export that may carry comments (--import). With
// --assets the referenced audio files are checked against a local
// store and, given --remote, downloaded into it. --dry-run replays
// through a recording engine and writes nothing.
package main
