// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout pattern so tests that wait on goroutines (the
// memory hub, websocket pumps, the agent's sync loop) fail instead of
// hanging. They are the only place tests touch the wall clock; timers
// under test use lib/clock's fake.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: project ids, peer ids, and operation ids that must
// not collide between parallel tests sharing a hub or a Redis server.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
