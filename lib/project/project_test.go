// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bureau-foundation/dawsync/lib/codec"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

const projectID = "project-1"

func mustApply(t *testing.T, p *Project, ops ...oplog.Operation) {
	t.Helper()
	for _, op := range ops {
		if _, err := p.Apply(op); err != nil {
			t.Fatalf("Apply(%s): %v", op.String(), err)
		}
	}
}

func regionIDs(regions []Region) []string {
	out := make([]string, len(regions))
	for i, region := range regions {
		out[i] = region.ID
	}
	return out
}

func TestAddRegionSeedsFields(t *testing.T) {
	p := New(projectID)
	op, err := p.AddRegion("t1", 0, 10, "drum.wav", "alice")
	if err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if op.Type != oplog.BoxAdd || op.Target.BoxKind != oplog.KindRegion {
		t.Fatalf("operation = %s, want a region box_add", op.String())
	}
	if !op.Timestamp.Equal(vclock.VectorClock{"alice": 1}) {
		t.Fatalf("timestamp = %s, want {alice:1}", op.Timestamp)
	}

	region, ok := p.Region(op.Target.BoxUUID)
	if !ok {
		t.Fatal("added region not found")
	}
	if region.TrackID != "t1" || region.CreatedBy != "alice" || region.FileName.Value != "drum.wav" {
		t.Fatalf("region = %+v", region)
	}
	if region.Volume.Value != DefaultVolume || region.Volume.Writer != "alice" {
		t.Fatalf("volume register = %+v, want seeded by alice", region.Volume)
	}
	if region.IsDeleted() {
		t.Fatal("new region is tombstoned")
	}
	if !slices.Equal(p.TrackIDs(), []string{"t1"}) {
		t.Fatalf("tracks = %v, want track created on demand", p.TrackIDs())
	}
	if got := regionIDs(p.ActiveRegions("t1")); !slices.Equal(got, []string{region.ID}) {
		t.Fatalf("active regions = %v", got)
	}
	if !p.Clock().Equal(vclock.VectorClock{"alice": 1}) {
		t.Fatalf("replica clock = %s", p.Clock())
	}
}

func TestLocalMutationErrors(t *testing.T) {
	p := New(projectID)
	add, err := p.AddRegion("t1", 0, 10, "drum.wav", "alice")
	if err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	regionID := add.Target.BoxUUID

	if _, err := p.AddRegion("t1", 5, 5, "x.wav", "alice"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("zero-length region: %v, want ErrInvalidValue", err)
	}
	if _, err := p.AddRegion("t1", 0, 5, "", "alice"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("empty file name: %v, want ErrInvalidValue", err)
	}
	if _, _, err := p.UpdateRegionVolume(regionID, 3, "alice"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("volume out of range: %v, want ErrInvalidValue", err)
	}
	if _, _, err := p.UpdateRegionPan(regionID, -1.5, "alice"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("pan out of range: %v, want ErrInvalidValue", err)
	}
	if _, _, err := p.UpdateRegionVolume("missing", 0.5, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown region: %v, want ErrNotFound", err)
	}
	if _, _, err := p.SetTrackMute("missing", true, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown track: %v, want ErrNotFound", err)
	}
	if _, _, err := p.SetBPM(0, "alice"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("zero bpm: %v, want ErrInvalidValue", err)
	}

	before := p.Clock()
	if _, _, err := p.UpdateRegionVolume(regionID, 9, "alice"); err == nil {
		t.Fatal("invalid update accepted")
	}
	if !p.Clock().Equal(before) {
		t.Fatalf("failed mutation advanced the clock: %s -> %s", before, p.Clock())
	}

	if _, changed, err := p.RemoveRegion(regionID, "alice"); err != nil || !changed {
		t.Fatalf("RemoveRegion = %v, %v", changed, err)
	}
	if _, _, err := p.UpdateRegionVolume(regionID, 0.5, "alice"); !errors.Is(err, ErrDeleted) {
		t.Errorf("update of deleted region: %v, want ErrDeleted", err)
	}
	op, changed, err := p.RemoveRegion(regionID, "alice")
	if err != nil || changed || op.ID != "" {
		t.Errorf("second RemoveRegion = %+v, %v, %v; want a no-op", op, changed, err)
	}
}

func TestUpdateReportsChanged(t *testing.T) {
	p := New(projectID)
	add, _ := p.AddRegion("t1", 0, 10, "drum.wav", "alice")
	regionID := add.Target.BoxUUID

	op, changed, err := p.UpdateRegionPosition(regionID, 2, 12, "alice")
	if err != nil || !changed {
		t.Fatalf("UpdateRegionPosition = %v, %v", changed, err)
	}
	if op.Target.FieldPath != PathPosition {
		t.Fatalf("field path = %q, want %q", op.Target.FieldPath, PathPosition)
	}
	region, _ := p.Region(regionID)
	if region.StartTime.Value != 2 || region.EndTime.Value != 12 {
		t.Fatalf("position = %v..%v", region.StartTime.Value, region.EndTime.Value)
	}

	// Replaying the same operation is a no-op.
	if changed, err := p.Apply(op); err != nil || changed {
		t.Fatalf("re-Apply = %v, %v; want unchanged", changed, err)
	}
}

// Two peers add regions to the same track concurrently, sync, then one
// deletes its region and syncs again.
func TestScenarioConcurrentAddThenDelete(t *testing.T) {
	a, b := New(projectID), New(projectID)

	r1, err := a.AddRegion("t1", 0, 10, "drum.wav", "A")
	if err != nil {
		t.Fatalf("A AddRegion: %v", err)
	}
	r2, err := b.AddRegion("t1", 10, 20, "bass.wav", "B")
	if err != nil {
		t.Fatalf("B AddRegion: %v", err)
	}
	mustApply(t, a, r2)
	mustApply(t, b, r1)

	want := []string{r1.Target.BoxUUID, r2.Target.BoxUUID}
	for name, replica := range map[string]*Project{"A": a, "B": b} {
		track, _ := replica.Track("t1")
		sorted := slices.Clone(want)
		slices.Sort(sorted)
		if !slices.Equal(track.Regions, sorted) {
			t.Fatalf("%s track regions = %v, want %v", name, track.Regions, sorted)
		}
		if got := regionIDs(replica.ActiveRegions("t1")); !slices.Equal(got, want) {
			t.Fatalf("%s active = %v, want %v", name, got, want)
		}
	}

	remove, changed, err := a.RemoveRegion(r1.Target.BoxUUID, "A")
	if err != nil || !changed {
		t.Fatalf("RemoveRegion = %v, %v", changed, err)
	}
	mustApply(t, b, remove)

	if got := regionIDs(b.ActiveRegions("t1")); !slices.Equal(got, []string{r2.Target.BoxUUID}) {
		t.Fatalf("B active after delete = %v, want only r2", got)
	}
	tombstone, ok := b.Region(r1.Target.BoxUUID)
	if !ok || !tombstone.IsDeleted() {
		t.Fatal("r1 is not retained as a tombstone on B")
	}
	track, _ := b.Track("t1")
	if !slices.Contains(track.Regions, r1.Target.BoxUUID) {
		t.Fatal("r1 was removed from the track set")
	}
	if !Equal(a, b) {
		t.Fatal("replicas diverged")
	}
}

// Concurrent volume writes resolve to the larger writer id on both
// peers regardless of delivery order.
func TestScenarioConcurrentVolume(t *testing.T) {
	fromA := oplog.Operation{
		ID:        "a-volume",
		Type:      oplog.BoxModify,
		Target:    oplog.Target{BoxUUID: "r1", BoxKind: oplog.KindRegion, FieldPath: FieldVolume},
		Data:      json.RawMessage(`{"volume":0.8}`),
		UserID:    "A",
		Timestamp: vclock.VectorClock{"A": 2},
	}
	fromB := oplog.Operation{
		ID:        "b-volume",
		Type:      oplog.BoxModify,
		Target:    oplog.Target{BoxUUID: "r1", BoxKind: oplog.KindRegion, FieldPath: FieldVolume},
		Data:      json.RawMessage(`{"volume":0.3}`),
		UserID:    "B",
		Timestamp: vclock.VectorClock{"A": 1, "B": 1},
	}

	a, b := New(projectID), New(projectID)
	mustApply(t, a, fromA, fromB)
	mustApply(t, b, fromB, fromA)

	for name, replica := range map[string]*Project{"A": a, "B": b} {
		region, _ := replica.Region("r1")
		if region.Volume.Value != 0.3 {
			t.Errorf("%s volume = %v, want 0.3 from writer B", name, region.Volume.Value)
		}
		if writer, _ := replica.FieldWriter(oplog.KindRegion, "r1", FieldVolume); writer != "B" {
			t.Errorf("%s last writer = %q, want B", name, writer)
		}
	}
	if !Equal(a, b) {
		t.Fatal("replicas diverged")
	}
}

// carol sets the volume, alice overwrites it after seeing carol's
// write, and bob writes concurrently with both. Every delivery order
// lands on alice's write, which has seen the most events.
func TestConcurrentVolumeConvergesInEveryOrder(t *testing.T) {
	volume := func(id, user string, value float64, clock vclock.VectorClock) oplog.Operation {
		return oplog.Operation{
			ID:        id,
			Type:      oplog.BoxModify,
			Target:    oplog.Target{BoxUUID: "r1", BoxKind: oplog.KindRegion, FieldPath: FieldVolume},
			Data:      json.RawMessage(fmt.Sprintf(`{"volume":%v}`, value)),
			UserID:    user,
			Timestamp: clock,
		}
	}
	ops := []oplog.Operation{
		volume("w1", "carol", 0.1, vclock.VectorClock{"carol": 1}),
		volume("w2", "alice", 0.2, vclock.VectorClock{"carol": 1, "alice": 1}),
		volume("w3", "bob", 0.3, vclock.VectorClock{"bob": 1}),
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var first *Project
	for _, order := range orders {
		replica := New(projectID)
		for _, i := range order {
			mustApply(t, replica, ops[i])
		}
		region, _ := replica.Region("r1")
		if region.Volume.Value != 0.2 || region.Volume.Writer != "alice" {
			t.Errorf("order %v: volume %v by %s, want 0.2 by alice", order, region.Volume.Value, region.Volume.Writer)
		}
		if first == nil {
			first = replica
		} else if !Equal(first, replica) {
			t.Errorf("order %v diverged from order %v", order, orders[0])
		}
	}
}

func TestApplyIsOrderIndependent(t *testing.T) {
	origin := New(projectID)
	var ops []oplog.Operation
	record := func(op oplog.Operation, _ bool, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("mutation: %v", err)
		}
		ops = append(ops, op)
	}

	trackOp, err := origin.AddTrack("t1", "Drums", "alice")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	ops = append(ops, trackOp)
	add, err := origin.AddRegion("t1", 0, 4, "kick.wav", "alice")
	if err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	ops = append(ops, add)
	regionID := add.Target.BoxUUID
	record(origin.UpdateRegionVolume(regionID, 0.7, "alice"))
	record(origin.UpdateRegionPosition(regionID, 1, 5, "alice"))
	record(origin.SetTrackMute("t1", true, "alice"))
	record(origin.AddEffect("t1", "reverb", "alice"))
	record(origin.SetBPM(96, "alice"))
	record(origin.RemoveRegion(regionID, "alice"))

	// Reverse order, then every op twice in original order.
	reversed := New(projectID)
	for i := len(ops) - 1; i >= 0; i-- {
		mustApply(t, reversed, ops[i])
	}
	duplicated := New(projectID)
	for _, op := range ops {
		mustApply(t, duplicated, op, op)
	}

	if !Equal(origin, reversed) {
		t.Error("reverse-order replay diverged from the origin")
	}
	if !Equal(origin, duplicated) {
		t.Error("duplicated replay diverged from the origin")
	}
	if reversed.BPM() != 96 {
		t.Errorf("BPM = %v, want 96", reversed.BPM())
	}
	region, _ := reversed.Region(regionID)
	if !region.IsDeleted() {
		t.Error("tombstone lost in reverse replay")
	}
}

func TestTombstoneSurvivesConcurrentEdits(t *testing.T) {
	a, b := New(projectID), New(projectID)
	add, _ := a.AddRegion("t1", 0, 10, "drum.wav", "A")
	mustApply(t, b, add)
	regionID := add.Target.BoxUUID

	remove, _, err := a.RemoveRegion(regionID, "A")
	if err != nil {
		t.Fatalf("RemoveRegion: %v", err)
	}
	// B, not yet aware of the removal, edits the region with a larger
	// writer id.
	edit, _, err := b.UpdateRegionVolume(regionID, 0.2, "Z")
	if err != nil {
		t.Fatalf("UpdateRegionVolume: %v", err)
	}
	mustApply(t, a, edit)
	mustApply(t, b, remove)

	for name, replica := range map[string]*Project{"A": a, "B": b} {
		region, _ := replica.Region(regionID)
		if !region.IsDeleted() {
			t.Errorf("%s revived the region", name)
		}
	}
	if !Equal(a, b) {
		t.Fatal("replicas diverged")
	}
}

func TestApplyRejectsMalformed(t *testing.T) {
	p := New(projectID)
	base := oplog.Operation{
		ID:        "op-1",
		Type:      oplog.BoxModify,
		Target:    oplog.Target{BoxUUID: "r1", BoxKind: oplog.KindRegion, FieldPath: FieldVolume},
		UserID:    "alice",
		Timestamp: vclock.VectorClock{"alice": 1},
	}
	tests := []struct {
		name   string
		mutate func(*oplog.Operation)
	}{
		{"unknown field", func(op *oplog.Operation) { op.Data = json.RawMessage(`{"gain":1}`) }},
		{"wrong type", func(op *oplog.Operation) { op.Data = json.RawMessage(`{"volume":"loud"}`) }},
		{"out of range", func(op *oplog.Operation) { op.Data = json.RawMessage(`{"volume":7}`) }},
		{"modify track id", func(op *oplog.Operation) { op.Data = json.RawMessage(`{"trackId":"t2"}`) }},
		{"add without track", func(op *oplog.Operation) {
			op.Type = oplog.BoxAdd
			op.Data = json.RawMessage(`{"fileName":"a.wav"}`)
		}},
		{"other project", func(op *oplog.Operation) {
			op.Target = oplog.Target{BoxUUID: "project-2", BoxKind: oplog.KindProject, FieldPath: FieldBPM}
			op.Data = json.RawMessage(`{"bpm":90}`)
		}},
		{"unknown connection", func(op *oplog.Operation) {
			op.Type = oplog.ConnectionChange
			op.Target = oplog.Target{BoxUUID: "t1", BoxKind: oplog.KindTrack, FieldPath: "sends"}
			op.Data = json.RawMessage(`{"effect":"fx"}`)
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			op := base.Clone()
			test.mutate(&op)
			_, err := p.Apply(op)
			var validationError *oplog.ValidationError
			if !errors.As(err, &validationError) {
				t.Fatalf("Apply = %v, want *oplog.ValidationError", err)
			}
			if len(p.RegionIDs()) != 0 || len(p.TrackIDs()) != 0 {
				t.Fatalf("rejected operation materialized boxes: regions %v tracks %v", p.RegionIDs(), p.TrackIDs())
			}
			if len(p.Clock()) != 0 {
				t.Fatalf("rejected operation advanced the clock: %s", p.Clock())
			}
		})
	}
}

func TestMergeLaws(t *testing.T) {
	a, b, c := New(projectID), New(projectID), New(projectID)
	addA, _ := a.AddRegion("t1", 0, 10, "drum.wav", "A")
	a.UpdateRegionVolume(addA.Target.BoxUUID, 0.5, "A")
	addB, _ := b.AddRegion("t2", 0, 8, "keys.wav", "B")
	b.SetBPM(140, "B")
	mustApply(t, c, addA)
	c.UpdateRegionVolume(addA.Target.BoxUUID, 0.9, "C")
	c.RemoveRegion(addA.Target.BoxUUID, "C")
	_ = addB

	merged := func(replicas ...*Project) *Project {
		out := New(projectID)
		for _, replica := range replicas {
			if _, err := out.Merge(replica); err != nil {
				t.Fatalf("Merge: %v", err)
			}
		}
		return out
	}

	abc := merged(a, b, c)
	if !Equal(abc, merged(c, b, a)) || !Equal(abc, merged(b, a, c)) {
		t.Fatal("merge is not commutative")
	}
	if !Equal(abc, merged(merged(a, b), c)) || !Equal(abc, merged(a, merged(b, c))) {
		t.Fatal("merge is not associative")
	}
	if changed, _ := abc.Merge(merged(a, b, c)); changed {
		t.Fatal("merging an equal replica reported a change")
	}
	if !Equal(abc, merged(a, a, b, c, c)) {
		t.Fatal("merge is not idempotent")
	}

	region, _ := abc.Region(addA.Target.BoxUUID)
	if !region.IsDeleted() {
		t.Fatal("merged replica lost the tombstone")
	}
	if abc.BPM() != 140 {
		t.Fatalf("BPM = %v, want 140", abc.BPM())
	}

	if _, err := abc.Merge(New("other")); err == nil {
		t.Fatal("merging a different project succeeded")
	}
}

func TestStateRoundTrip(t *testing.T) {
	p := New(projectID)
	add, _ := p.AddRegion("t1", 0, 10, "drum.wav", "alice")
	p.UpdateRegionPan(add.Target.BoxUUID, -0.25, "alice")
	p.AddEffect("t1", "eq", "alice")
	p.SetName("Demo", "alice")
	p.RemoveRegion(add.Target.BoxUUID, "alice")
	// A region known only through an early update.
	mustApply(t, p, oplog.Operation{
		ID:        "early",
		Type:      oplog.BoxModify,
		Target:    oplog.Target{BoxUUID: "r-late", BoxKind: oplog.KindRegion, FieldPath: FieldColor},
		Data:      json.RawMessage(`{"color":"#ff0000"}`),
		UserID:    "bob",
		Timestamp: vclock.VectorClock{"bob": 1},
	})

	t.Run("json", func(t *testing.T) {
		encoded, err := json.Marshal(p.State())
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var state State
		if err := json.Unmarshal(encoded, &state); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		restored, err := FromState(state)
		if err != nil {
			t.Fatalf("FromState: %v", err)
		}
		if !Equal(p, restored) {
			t.Fatal("JSON round trip changed the replica")
		}
	})

	t.Run("cbor", func(t *testing.T) {
		encoded, err := codec.Marshal(p.State())
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var state State
		if err := codec.Unmarshal(encoded, &state); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		restored, err := FromState(state)
		if err != nil {
			t.Fatalf("FromState: %v", err)
		}
		if !Equal(p, restored) {
			t.Fatal("CBOR round trip changed the replica")
		}
		if restored.Name() != "Demo" {
			t.Fatalf("name = %q", restored.Name())
		}
	})

	if _, err := FromState(State{}); err == nil {
		t.Fatal("FromState accepted a state without an id")
	}
}
