// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package updatetask translates committed operations into the four
// native task kinds a consuming audio engine understands and applies
// them transactionally.
//
// [Generate] maps box_add to a new task (plus pointer wiring for
// reference fields such as a region's track), box_modify to
// update-primitive tasks (update-pointer for reference fields),
// connection_change to update-pointer, and box_remove to delete.
//
// [Apply] runs a batch inside one BeginTransaction/CommitTransaction
// pair. It stops at the first failing task, always closes the
// transaction, and returns the task failure and any commit failure
// joined. Nothing is swallowed.
//
// [RecordingEngine] is an in-memory [Engine] that keeps the resulting
// box graph. The rebuild command uses it for dry runs and tests use it
// to observe what an engine would receive.
package updatetask
