// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assets stores and serves the audio files regions reference.
//
// A [Store] holds asset bytes by id. [FileStore] keeps one file per
// asset under a root directory. Each file starts with a fixed header
// (magic, compression tag, uncompressed size, BLAKE3 digest of the
// uncompressed bytes) followed by the body. The body is compressed
// with zstd or lz4, whichever comes out smaller, or stored raw
// when neither helps (already-compressed audio usually is). Reads
// verify the digest, so a truncated or corrupted file is reported
// rather than served.
//
// A [Source] fetches assets that are not stored locally: [HTTPSource]
// from a remote asset host, [StoreSource] from another Store.
//
// [Cache] is the bounded, TTL-expiring in-memory layer the
// collaboration agent owns. It reads through to a Store and, on a
// miss there, to an optional Source, and collapses concurrent loads of
// the same id into one.
//
// Failures to produce an asset are reported as [UnavailableError]. For
// a rebuild they are warnings, not failures.
package assets
