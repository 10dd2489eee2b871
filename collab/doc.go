// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collab runs one peer of a shared project.
//
// An [Agent] owns a project replica, its operation log, and a
// transport. Local edits (AddAudioRegion, UpdateRegionVolume,
// DeleteRegion, ...) mutate the replica synchronously; if the write
// won, the operation is logged with its causal dependencies, broadcast
// to peers, persisted, and reported to [Agent.OnChange] listeners.
// Local errors are returned to the caller.
//
// Remote messages arrive through the transport subscription or
// [Agent.HandleMessage]. Operations are appended to the log and
// applied once their dependencies have been applied; until then they
// are buffered. Applying is idempotent, so duplicated or replayed
// messages are harmless. A malformed message is logged and counted and
// never affects unrelated state.
//
// Anti-entropy: every sync interval the agent broadcasts a
// CRDT_SYNC_REQUEST carrying its applied-operation frontier, and peers
// answer with the operations it lacks. A peer with an empty frontier
// receives the responder's full state. An operation buffered longer
// than the dependency timeout triggers a request naming its missing
// dependencies; after the configured number of such requests it is
// applied anyway.
//
// Persistence is optional and two-part: the replica's full state is
// written as CBOR to a [kvstore.Store] under project/<id>/state after
// every change, and every operation is recorded in an [oplog.Store].
// Initialize restores both.
package collab
