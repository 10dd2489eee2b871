// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging defines the messages peers exchange about a shared
// project.
//
// A [Message] is an envelope (project, sender, send time) around a
// [Payload]. Payload is a sealed interface: only the six kinds in this
// package implement it, and [Dispatch] routes each to the matching
// method of a [Handler]. Adding a kind adds a Handler method, so every
// handler stops compiling until it handles the new kind.
//
// On the wire a message is a JSON object:
//
//	{"type": "CRDT_REGION_UPDATED", "projectId": "...", "userId": "...",
//	 "data": {...}, "timestamp": 1767225600000}
//
// where data is the payload for that type and timestamp is the
// sender's wall clock in Unix milliseconds (informational only;
// causality is carried by the operations' vector clocks). Decoding an
// unknown type fails with a [*DecodeError].
//
// The kinds:
//
//   - CRDT_REGION_ADDED, CRDT_REGION_UPDATED, CRDT_REGION_DELETED: one
//     operation each, pushed as soon as a local write wins.
//   - CRDT_DELTA: a batch of operations.
//   - CRDT_SYNC_REQUEST: the sender's applied-operation frontier, plus
//     ids of dependencies it is missing. An empty frontier asks for
//     everything.
//   - CRDT_SYNC_RESPONSE: operations the requester lacks, and on a cold
//     start the responder's full project state.
package messaging
