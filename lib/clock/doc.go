// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every component that schedules work (the collaboration agent's
// periodic anti-entropy sync, dependency-buffer deadlines, rebuild
// timing) takes a [Clock] instead of calling the time package. In
// production [Real] wraps the standard library. In tests [Fake] returns
// a [FakeClock] whose time only moves when Advance is called, so a test
// can fire the sync ticker exactly once:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	agent := collab.New(cfg, collab.Deps{Clock: fake, ...})
//	fake.WaitForTimers(1)
//	fake.Advance(cfg.SyncInterval)
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing time past it.
package clock
