// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rebuild reconstructs a project from its operation log.
//
// [Rebuilder.Rebuild] replays operations onto a fresh project in the
// log's deterministic causal order, reconciles the audio files the
// result references against a local asset store, and encodes the
// result as a [snapshot] payload. It never returns an error: problems
// are collected in [Result.Errors] (an operation that failed to apply,
// a snapshot that failed to encode, cancellation) and
// [Result.Warnings] (operations whose dependencies never arrived, audio
// that could not be downloaded). The caller decides whether a degraded
// project is usable.
//
// Asset downloads start only after replay finishes, run in parallel up
// to [Config.Concurrency], and each gets [Config.DownloadTimeout] and at
// most one retry.
//
// When [Config.Engine] is set, the update tasks generated from the
// replayed operations are applied to it in one transaction, so an
// engine can be brought up to date from a cold start.
package rebuild
