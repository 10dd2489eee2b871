// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dawsync-relay accepts peer websocket connections on /ws and forwards
// each message to the other peers of the same project. Peers identify
// themselves with ?project=&user= query parameters. /healthz reports
// liveness; prometheus metrics are served on a separate listener.
package main
