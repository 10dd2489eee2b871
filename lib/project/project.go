// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/bureau-foundation/dawsync/lib/crdt"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Project is one replica of a project.
type Project struct {
	id string

	name          crdt.LWWRegister[string]
	bpm           crdt.LWWRegister[float64]
	timeSignature crdt.LWWRegister[string]
	masterVolume  crdt.LWWRegister[float64]

	trackIDs crdt.GSet[string]
	tracks   map[string]*Track
	regions  map[string]*Region

	// clock is the replica clock: the merge of every operation
	// timestamp applied here. Local operations are stamped with it
	// after incrementing the author's entry.
	clock vclock.VectorClock
}

// New returns an empty replica of the project with the given id.
func New(id string) *Project {
	return &Project{
		id:      id,
		tracks:  make(map[string]*Track),
		regions: make(map[string]*Region),
		clock:   vclock.New(),
	}
}

// ID returns the project id.
func (p *Project) ID() string { return p.id }

// Clock returns a copy of the replica clock.
func (p *Project) Clock() vclock.VectorClock { return p.clock.Clone() }

// Name returns the project name.
func (p *Project) Name() string { return p.name.Value }

// BPM returns the tempo, DefaultBPM if never set.
func (p *Project) BPM() float64 {
	if p.bpm.IsZero() {
		return DefaultBPM
	}
	return p.bpm.Value
}

// TimeSignature returns the meter, DefaultTimeSignature if never set.
func (p *Project) TimeSignature() string {
	if p.timeSignature.IsZero() {
		return DefaultTimeSignature
	}
	return p.timeSignature.Value
}

// MasterVolume returns the master gain, DefaultVolume if never set.
func (p *Project) MasterVolume() float64 {
	if p.masterVolume.IsZero() {
		return DefaultVolume
	}
	return p.masterVolume.Value
}

// TrackIDs returns every track id, sorted.
func (p *Project) TrackIDs() []string { return p.trackIDs.Elements() }

// Track returns a snapshot of the track.
func (p *Project) Track(id string) (TrackState, bool) {
	track, ok := p.tracks[id]
	if !ok {
		return TrackState{}, false
	}
	return track.state(), true
}

// Region returns a copy of the region, tombstoned or not.
func (p *Project) Region(id string) (Region, bool) {
	region, ok := p.regions[id]
	if !ok {
		return Region{}, false
	}
	return region.clone(), true
}

// ActiveRegions returns the track's regions that are added and not
// tombstoned, ordered by start time then id.
func (p *Project) ActiveRegions(trackID string) []Region {
	track, ok := p.tracks[trackID]
	if !ok {
		return nil
	}
	var active []Region
	for _, id := range track.Regions.Elements() {
		region, ok := p.regions[id]
		if !ok || !region.Added() || region.IsDeleted() {
			continue
		}
		active = append(active, region.clone())
	}
	slices.SortFunc(active, func(a, b Region) int {
		if c := cmp.Compare(a.StartTime.Value, b.StartTime.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return active
}

// RegionIDs returns every region id the replica knows, tombstones
// included, sorted.
func (p *Project) RegionIDs() []string {
	ids := make([]string, 0, len(p.regions))
	for id := range p.regions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// FieldWriter returns the id of the peer whose write is current for a
// field, for presentation. kind is one of the oplog box kinds.
func (p *Project) FieldWriter(kind, boxID, field string) (string, bool) {
	switch kind {
	case oplog.KindRegion:
		if region, ok := p.regions[boxID]; ok {
			return region.register(field)
		}
	case oplog.KindTrack:
		if track, ok := p.tracks[boxID]; ok {
			return track.register(field)
		}
	case oplog.KindProject:
		if boxID != p.id {
			return "", false
		}
		switch field {
		case FieldName:
			return p.name.LastWriter(), true
		case FieldBPM:
			return p.bpm.LastWriter(), true
		case FieldTimeSignature:
			return p.timeSignature.LastWriter(), true
		case FieldMasterVolume:
			return p.masterVolume.LastWriter(), true
		}
	}
	return "", false
}

func (p *Project) fields() map[string]binder {
	return map[string]binder{
		FieldName:          bind(&p.name, nil),
		FieldBPM:           bind(&p.bpm, positive),
		FieldTimeSignature: bind(&p.timeSignature, nonEmpty),
		FieldMasterVolume:  bind(&p.masterVolume, volumeRange),
	}
}

// track returns the track, materializing an empty one if unknown.
func (p *Project) track(id string) (*Track, bool) {
	if track, ok := p.tracks[id]; ok {
		return track, false
	}
	track := &Track{ID: id}
	p.tracks[id] = track
	p.trackIDs.Add(id)
	return track, true
}

// region returns the region, materializing an empty one if unknown.
func (p *Project) region(id string) (*Region, bool) {
	if region, ok := p.regions[id]; ok {
		return region, false
	}
	region := &Region{ID: id}
	p.regions[id] = region
	return region, true
}

// Merge folds another replica of the same project into p. It reports
// whether p changed.
func (p *Project) Merge(other *Project) (bool, error) {
	if other.id != p.id {
		return false, fmt.Errorf("merging project %q into %q", other.id, p.id)
	}
	changed := false
	for _, merged := range []bool{
		p.name.Merge(other.name),
		p.bpm.Merge(other.bpm),
		p.timeSignature.Merge(other.timeSignature),
		p.masterVolume.Merge(other.masterVolume),
	} {
		changed = changed || merged
	}
	for _, id := range other.trackIDs.Elements() {
		track, created := p.track(id)
		if track.merge(other.tracks[id]) || created {
			changed = true
		}
	}
	for id, theirs := range other.regions {
		region, created := p.region(id)
		if region.merge(theirs) || created {
			changed = true
		}
	}
	p.clock.Merge(other.clock)
	return changed, nil
}
