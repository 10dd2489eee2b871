// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vclock implements vector clocks: a per-peer counter map that
// orders events causally.
//
// [Compare] yields the standard partial order. Equal clocks compare as
// [Concurrent] so that register tie-breaking treats "same stamp" and
// "neither saw the other" the same way.
package vclock
