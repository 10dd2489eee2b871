// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot defines the binary project snapshot a rebuild
// produces.
//
// The format is a 4-byte magic "DAWP", a 4-byte little-endian payload
// length, and the UTF-8 JSON [Payload]. The payload holds only values
// derived from the operation log (no wall-clock times), and every
// collection is sorted, so two rebuilds of the same log encode to the
// same bytes.
//
// [FromProject] flattens a replica into a Payload: one box per project,
// track and active region, the connections between them (region to
// track, track to effect), the track mixer settings, and the distinct
// audio files active regions reference.
package snapshot
