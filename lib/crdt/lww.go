// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import "github.com/bureau-foundation/dawsync/lib/vclock"

// LWWRegister is a last-writer-wins register. The zero value is an
// unwritten register that accepts any write.
type LWWRegister[T any] struct {
	Value  T                  `json:"value"`
	Clock  vclock.VectorClock `json:"clock"`
	Writer string             `json:"writer"`
}

// NewLWW returns a register holding value as written by writer at clock.
func NewLWW[T any](value T, clock vclock.VectorClock, writer string) LWWRegister[T] {
	return LWWRegister[T]{Value: value, Clock: clock.Clone(), Writer: writer}
}

// Set offers a write. It reports whether the write won and replaced the
// current value. Rules, in order:
//
//   - a causally later clock wins, an earlier one loses;
//   - an identical stamp (same clock, same writer) is a no-op;
//   - of two concurrent clocks the one with more events wins;
//   - equal event counts resolve to the lexicographically larger writer.
//
// The rules are vclock.CompareStamps, a total order, so every replica
// keeps the same write whatever order the writes arrive in.
func (r *LWWRegister[T]) Set(value T, clock vclock.VectorClock, writer string) bool {
	if !r.accepts(clock, writer) {
		return false
	}
	r.Value = value
	r.Clock = clock.Clone()
	r.Writer = writer
	return true
}

// Merge folds another replica of the register into r. It reports
// whether r changed.
func (r *LWWRegister[T]) Merge(other LWWRegister[T]) bool {
	if other.IsZero() {
		return false
	}
	return r.Set(other.Value, other.Clock, other.Writer)
}

// Get returns the current value.
func (r *LWWRegister[T]) Get() T { return r.Value }

// LastWriter returns the id of the peer whose write is current. Empty
// for an unwritten register.
func (r *LWWRegister[T]) LastWriter() string { return r.Writer }

// IsZero reports whether the register was never written.
func (r *LWWRegister[T]) IsZero() bool {
	return r.Writer == "" && len(r.Clock) == 0
}

func (r *LWWRegister[T]) accepts(clock vclock.VectorClock, writer string) bool {
	return vclock.CompareStamps(clock, writer, r.Clock, r.Writer) > 0
}
