// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves [messaging.Message] values between the peers
// of one project.
//
// A [Transport] is bound to a single project and a single local peer.
// Send broadcasts to every other peer of the project; Subscribe
// registers a callback for messages from other peers. No transport
// promises delivery, ordering across senders, or exactly-once
// semantics: the operation log deduplicates by id and periodic
// anti-entropy sync repairs anything lost. A transport never delivers
// a peer's own messages back to it.
//
// Implementations:
//
//   - [MemoryHub]: in-process fan-out for tests and single-binary
//     demos. Delivery is asynchronous per peer; [MemoryHub.Settle]
//     waits for quiescence. Peers can be taken offline to simulate a
//     partition.
//   - [WebSocket]: a client connected to a [Relay] over gorilla
//     websocket, one JSON text frame per message.
//   - [Relay]: the websocket server side. It groups connections into
//     rooms by project id and forwards each frame to the rest of the
//     room. It never interprets operations.
//   - [Redis]: publish/subscribe over a Redis channel named
//     dawsync:project:<id>.
//
// Send failures are returned as [*SendError]. Callbacks run on the
// transport's delivery goroutine; a slow callback delays later
// messages to the same peer but never blocks other peers.
package transport
