// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package crdt provides the generic conflict-free building blocks the
// project model is composed from.
//
// [LWWRegister] holds one value stamped with a vector clock and the id
// of the peer that wrote it. A write replaces the value when its clock
// is causally later; concurrent writes resolve to the larger writer id.
// Merge is commutative, associative and idempotent, so replicas that
// see the same writes in any order, any number of times, hold the same
// value.
//
// [GSet] is a grow-only set. Elements are never removed; logical
// deletion is an LWWRegister[bool] kept next to the set member (the
// two-phase pattern), because physical removal does not commute with a
// concurrent re-add.
//
// Both types are plain values with no internal locking. The owner
// (the project model) serializes access.
package crdt
