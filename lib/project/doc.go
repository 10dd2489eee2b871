// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package project is the replicated model of one audio project: the
// project settings, its tracks, and the audio regions placed on them.
//
// Every mutable field is a [crdt.LWWRegister] stamped with the vector
// clock and id of the peer that wrote it. Membership (tracks in the
// project, regions and effects on a track) is a [crdt.GSet]. A region
// is never removed from its track; deletion sets its Deleted register,
// and that register is only ever written true, so a tombstone cannot be
// revived by any merge order.
//
// All changes flow through [oplog.Operation] values. A local mutation
// (AddRegion, UpdateRegionVolume, ...) builds the operation, applies it
// with [Project.Apply], and returns it for the caller to log and
// broadcast; a remote operation goes through the same Apply. Apply is
// a delta-state merge: an operation that targets a box this replica
// has not seen yet materializes the box, so operations can be applied
// in any order and any number of times with the same result. The
// changed flag Apply returns is true only when the operation won at
// least one register or grew a set; callers use it to skip redundant
// broadcasts.
//
// [Project.State] and [FromState] convert to and from a plain,
// serializable snapshot of the whole replica (used for persistence and
// full-state sync). [Project.Merge] folds another replica in and is
// commutative, associative and idempotent.
//
// Project is not safe for concurrent use.
package project
