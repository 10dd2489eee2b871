// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vclock

import (
	"cmp"
	"sort"
	"strconv"
	"strings"
)

// Ordering is the causal relation between two clocks.
type Ordering int

const (
	// Concurrent means neither clock dominates the other, or they are
	// equal.
	Concurrent Ordering = iota
	// Before means the receiver happened strictly before the argument.
	Before
	// After means the receiver happened strictly after the argument.
	After
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "concurrent"
	}
}

// VectorClock maps a peer id to the number of events that peer has
// produced. The zero value (nil) is an empty clock and is safe to read;
// use New or Clone before mutating.
type VectorClock map[string]uint64

// New returns an empty clock.
func New() VectorClock { return make(VectorClock) }

// Get returns peer's counter (zero if absent).
func (v VectorClock) Get(peer string) uint64 { return v[peer] }

// Increment bumps peer's own counter and returns v.
func (v VectorClock) Increment(peer string) VectorClock {
	v[peer]++
	return v
}

// Merge folds other into v by pointwise maximum and returns v. No entry
// ever decreases.
func (v VectorClock) Merge(other VectorClock) VectorClock {
	for peer, count := range other {
		if count > v[peer] {
			v[peer] = count
		}
	}
	return v
}

// Clone returns an independent copy. Cloning nil yields an empty,
// writable clock.
func (v VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(v))
	for peer, count := range v {
		out[peer] = count
	}
	return out
}

// Compare reports the causal relation of v to other.
func (v VectorClock) Compare(other VectorClock) Ordering {
	less, greater := false, false
	for peer, count := range v {
		switch theirs := other[peer]; {
		case count < theirs:
			less = true
		case count > theirs:
			greater = true
		}
	}
	for peer, theirs := range other {
		if _, seen := v[peer]; !seen && theirs > 0 {
			less = true
		}
	}
	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

// Equal reports whether both clocks hold the same counters. Missing
// entries equal zero.
func (v VectorClock) Equal(other VectorClock) bool {
	return v.Dominates(other) && other.Dominates(v)
}

// Dominates reports whether v has seen everything other has: every
// entry of v is >= the matching entry of other.
func (v VectorClock) Dominates(other VectorClock) bool {
	for peer, theirs := range other {
		if v[peer] < theirs {
			return false
		}
	}
	return true
}

// Sum returns the total number of events recorded in v.
func (v VectorClock) Sum() uint64 {
	var total uint64
	for _, count := range v {
		total += count
	}
	return total
}

// String renders the clock with peers sorted, e.g. "{alice:2,bob:1}".
// Zero entries are omitted so equal clocks render identically.
func (v VectorClock) String() string {
	peers := make([]string, 0, len(v))
	for peer, count := range v {
		if count > 0 {
			peers = append(peers, peer)
		}
	}
	sort.Strings(peers)

	var b strings.Builder
	b.WriteByte('{')
	for i, peer := range peers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(peer)
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(v[peer], 10))
	}
	b.WriteByte('}')
	return b.String()
}

// Less is a deterministic total order over clocks that is consistent
// with causality: if a happened before b then Less(a, b). Concurrent
// clocks order by event count, then by their rendered form.
func Less(a, b VectorClock) bool {
	return CompareStamps(a, "", b, "") < 0
}

// CompareStamps totally orders (clock, writer) stamps and returns -1, 0
// or +1. A causally earlier clock sorts first. Otherwise stamps order
// by event count (a Lamport time), then writer, then rendered clock.
// A happened-before b implies a has fewer events, so the order is a
// linear extension of causality and never cycles.
func CompareStamps(a VectorClock, aWriter string, b VectorClock, bWriter string) int {
	switch a.Compare(b) {
	case Before:
		return -1
	case After:
		return 1
	}
	if c := cmp.Compare(a.Sum(), b.Sum()); c != 0 {
		return c
	}
	if c := strings.Compare(aWriter, bWriter); c != 0 {
		return c
	}
	return strings.Compare(a.String(), b.String())
}
