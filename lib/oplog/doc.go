// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package oplog records the operations that change a project and orders
// them causally for replay.
//
// Every mutation (local or remote) is an [Operation]: one of box_add,
// box_modify, box_remove or connection_change against a target box,
// stamped with the author's vector clock and the ids of the operations
// it depends on. [Log] keeps every operation it has seen, tracks which
// have been applied to the live model, and answers the questions the
// sync protocol asks:
//
//   - [Log.Ready]: unapplied operations whose dependencies are all
//     applied, in deterministic order.
//   - [Log.Pending]: buffered operations and the dependency ids that
//     have never arrived (the input to a targeted repair request).
//   - [Log.OrderedOperations]: a topological order over every
//     operation whose dependency closure is present, used for replay
//     from scratch.
//   - [Log.Frontier] and [Log.ChangesSince]: the anti-entropy pair. A
//     peer advertises its frontier; the responder sends every applied
//     operation the frontier has not covered.
//
// Operations are validated on entry ([Operation.Validate]); a malformed
// operation is rejected with a [ValidationError] and never reaches the
// log. A missing dependency is not an error: the operation waits in the
// log until the dependency arrives or the caller decides to force it.
//
// Durable storage is behind the [Store] interface. [SQLiteStore] keeps
// one CBOR-encoded row per operation in a WAL-mode SQLite database;
// [MemoryStore] is for tests. [Load] rebuilds a Log from either.
//
// Log is not safe for concurrent use. The collaboration agent and the
// rebuilder each own their log and serialize access themselves.
package oplog
