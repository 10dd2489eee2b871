// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dawsync-peer runs one collaboration agent for a project. It joins
// the configured transport (a websocket relay, a Redis channel, or an
// in-process hub for local experiments), restores the replica from the
// state and operation-log stores, and keeps it in sync until SIGINT or
// SIGTERM. Every change is logged; --metrics serves the agent's
// prometheus collectors.
package main
