// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is the key-value store the collaboration agent
// persists serialized project state into.
//
// [Badger] is backed by dgraph-io/badger/v4, either on disk or in
// memory, with an optional value-log GC loop driven by lib/clock.
// [Memory] is a map for tests. Both return [ErrNotFound] for a missing
// key.
package kvstore
