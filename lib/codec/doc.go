// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds dawsync's CBOR configuration.
//
// dawsync uses two formats with a fixed boundary:
//
//   - JSON for anything another process reads: peer messages on the
//     transport and the rebuilt project snapshot payload.
//   - CBOR for this process's own on-disk records: operation-log rows
//     and the persisted CRDT state of a project.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always encodes to the same bytes. Types carry json
// struct tags; fxamacker/cbor falls back to them when no cbor tag is
// present, so one set of tags serves both formats.
package codec
