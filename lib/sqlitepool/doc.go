// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases for dawsync's local stores.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection: WAL journaling, NORMAL synchronous
// writes, a busy timeout, and an in-memory temp store. A replica's
// operation log survives a process crash under these settings; an OS
// crash may lose the last few commits, which the sync protocol
// recovers from peers.
//
// Connections are not safe for concurrent use. Take one per goroutine
// and Put it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
