// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vclock

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b VectorClock
		want Ordering
	}{
		{"both empty", nil, VectorClock{}, Concurrent},
		{"equal", VectorClock{"a": 1, "b": 2}, VectorClock{"a": 1, "b": 2}, Concurrent},
		{"strictly before", VectorClock{"a": 1}, VectorClock{"a": 2}, Before},
		{"before via missing entry", VectorClock{"a": 1}, VectorClock{"a": 1, "b": 1}, Before},
		{"after", VectorClock{"a": 3, "b": 1}, VectorClock{"a": 2, "b": 1}, After},
		{"concurrent", VectorClock{"a": 2}, VectorClock{"a": 1, "b": 1}, Concurrent},
		{"zero entries ignored", VectorClock{"a": 1, "b": 0}, VectorClock{"a": 1}, Concurrent},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.a.Compare(test.b); got != test.want {
				t.Errorf("%v.Compare(%v) = %v, want %v", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestMergeIsPointwiseMax(t *testing.T) {
	clock := VectorClock{"a": 3, "b": 1}
	clock.Merge(VectorClock{"a": 1, "b": 4, "c": 2})

	want := VectorClock{"a": 3, "b": 4, "c": 2}
	if !clock.Equal(want) {
		t.Fatalf("merged = %v, want %v", clock, want)
	}
}

func TestMergeCommutesAndIsIdempotent(t *testing.T) {
	x := VectorClock{"a": 2, "b": 5}
	y := VectorClock{"b": 1, "c": 7}

	xy := x.Clone().Merge(y)
	yx := y.Clone().Merge(x)
	if !xy.Equal(yx) {
		t.Fatalf("merge not commutative: %v vs %v", xy, yx)
	}
	if again := xy.Clone().Merge(y); !again.Equal(xy) {
		t.Fatalf("merge not idempotent: %v vs %v", again, xy)
	}
}

func TestIncrementTouchesOnlyOwnEntry(t *testing.T) {
	clock := VectorClock{"a": 1, "b": 1}
	clock.Increment("a").Increment("a")
	if clock.Get("a") != 3 || clock.Get("b") != 1 {
		t.Fatalf("clock = %v, want {a:3,b:1}", clock)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	var empty VectorClock
	clone := empty.Clone()
	clone.Increment("a")
	if empty.Get("a") != 0 {
		t.Fatal("incrementing a clone changed the original")
	}
}

func TestDominates(t *testing.T) {
	if !(VectorClock{"a": 2, "b": 1}).Dominates(VectorClock{"a": 2}) {
		t.Error("{a:2,b:1} should dominate {a:2}")
	}
	if (VectorClock{"a": 2}).Dominates(VectorClock{"b": 1}) {
		t.Error("{a:2} should not dominate {b:1}")
	}
	if !(VectorClock{}).Dominates(nil) {
		t.Error("empty should dominate nil")
	}
}

func TestStringIsStable(t *testing.T) {
	clock := VectorClock{"zed": 1, "alice": 2, "bob": 0}
	if got := clock.String(); got != "{alice:2,zed:1}" {
		t.Fatalf("String() = %q", got)
	}
}

func TestLessIsCausalAndTotal(t *testing.T) {
	early := VectorClock{"a": 1}
	late := VectorClock{"a": 1, "b": 1}
	if !Less(early, late) || Less(late, early) {
		t.Fatal("Less must follow causality")
	}

	x := VectorClock{"a": 2}
	y := VectorClock{"b": 2}
	if Less(x, y) == Less(y, x) {
		t.Fatal("Less must order concurrent clocks one way")
	}
	if Less(x, x.Clone()) {
		t.Fatal("Less must be irreflexive")
	}
}

func TestCompareStamps(t *testing.T) {
	tests := []struct {
		name    string
		a       VectorClock
		aWriter string
		b       VectorClock
		bWriter string
		want    int
	}{
		{"causal beats writer", VectorClock{"z": 1}, "z", VectorClock{"z": 1, "a": 1}, "a", -1},
		{"more events wins", VectorClock{"a": 2}, "a", VectorClock{"z": 1}, "z", 1},
		{"equal events larger writer", VectorClock{"a": 1, "b": 1}, "b", VectorClock{"a": 2}, "a", 1},
		{"same writer falls back to clock", VectorClock{"a": 2}, "a", VectorClock{"b": 2}, "a", -1},
		{"identical", VectorClock{"a": 1}, "a", VectorClock{"a": 1, "b": 0}, "a", 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := CompareStamps(test.a, test.aWriter, test.b, test.bWriter); got != test.want {
				t.Errorf("CompareStamps = %d, want %d", got, test.want)
			}
			if got := CompareStamps(test.b, test.bWriter, test.a, test.aWriter); got != -test.want {
				t.Errorf("reversed CompareStamps = %d, want %d", got, -test.want)
			}
		})
	}
}
