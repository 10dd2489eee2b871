// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"errors"
	"slices"

	"github.com/bureau-foundation/dawsync/lib/crdt"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// State is the full serializable form of a replica, tombstones
// included. Tracks and regions are sorted by id.
type State struct {
	ID            string                    `json:"id"`
	Clock         vclock.VectorClock        `json:"clock"`
	Name          crdt.LWWRegister[string]  `json:"name"`
	BPM           crdt.LWWRegister[float64] `json:"bpm"`
	TimeSignature crdt.LWWRegister[string]  `json:"timeSignature"`
	MasterVolume  crdt.LWWRegister[float64] `json:"masterVolume"`
	Tracks        []TrackState              `json:"tracks"`
	Regions       []Region                  `json:"regions"`
}

// State returns a deep copy of the replica.
func (p *Project) State() State {
	state := State{
		ID:            p.id,
		Clock:         p.clock.Clone(),
		Name:          crdt.NewLWW(p.name.Value, p.name.Clock, p.name.Writer),
		BPM:           crdt.NewLWW(p.bpm.Value, p.bpm.Clock, p.bpm.Writer),
		TimeSignature: crdt.NewLWW(p.timeSignature.Value, p.timeSignature.Clock, p.timeSignature.Writer),
		MasterVolume:  crdt.NewLWW(p.masterVolume.Value, p.masterVolume.Clock, p.masterVolume.Writer),
		Tracks:        make([]TrackState, 0, len(p.tracks)),
		Regions:       make([]Region, 0, len(p.regions)),
	}
	for _, id := range p.trackIDs.Elements() {
		state.Tracks = append(state.Tracks, p.tracks[id].state())
	}
	for _, id := range p.RegionIDs() {
		state.Regions = append(state.Regions, p.regions[id].clone())
	}
	return state
}

// FromState builds a replica from a State.
func FromState(state State) (*Project, error) {
	if state.ID == "" {
		return nil, errors.New("project state without an id")
	}
	p := New(state.ID)
	p.clock = state.Clock.Clone()
	p.name = crdt.NewLWW(state.Name.Value, state.Name.Clock, state.Name.Writer)
	p.bpm = crdt.NewLWW(state.BPM.Value, state.BPM.Clock, state.BPM.Writer)
	p.timeSignature = crdt.NewLWW(state.TimeSignature.Value, state.TimeSignature.Clock, state.TimeSignature.Writer)
	p.masterVolume = crdt.NewLWW(state.MasterVolume.Value, state.MasterVolume.Clock, state.MasterVolume.Writer)

	for _, trackState := range state.Tracks {
		if trackState.ID == "" {
			return nil, errors.New("project state has a track without an id")
		}
		track, _ := p.track(trackState.ID)
		track.merge(trackFromState(trackState))
	}
	for i := range state.Regions {
		if state.Regions[i].ID == "" {
			return nil, errors.New("project state has a region without an id")
		}
		region, _ := p.region(state.Regions[i].ID)
		region.merge(&state.Regions[i])
	}
	return p, nil
}

// Equal reports whether two replicas hold the same registers, sets and
// clock.
func Equal(a, b *Project) bool {
	sa, sb := a.State(), b.State()
	if sa.ID != sb.ID || !sa.Clock.Equal(sb.Clock) ||
		!sameLWW(sa.Name, sb.Name) || !sameLWW(sa.BPM, sb.BPM) ||
		!sameLWW(sa.TimeSignature, sb.TimeSignature) || !sameLWW(sa.MasterVolume, sb.MasterVolume) {
		return false
	}
	if !slices.EqualFunc(sa.Tracks, sb.Tracks, func(x, y TrackState) bool {
		return x.ID == y.ID && sameLWW(x.Name, y.Name) && sameLWW(x.Volume, y.Volume) &&
			sameLWW(x.Pan, y.Pan) && sameLWW(x.Mute, y.Mute) && sameLWW(x.Solo, y.Solo) &&
			slices.Equal(x.Regions, y.Regions) && slices.Equal(x.Effects, y.Effects)
	}) {
		return false
	}
	return slices.EqualFunc(sa.Regions, sb.Regions, func(x, y Region) bool {
		return x.ID == y.ID && x.TrackID == y.TrackID && x.CreatedBy == y.CreatedBy &&
			x.CreatedAt.Equal(y.CreatedAt) &&
			sameLWW(x.StartTime, y.StartTime) && sameLWW(x.EndTime, y.EndTime) &&
			sameLWW(x.FileName, y.FileName) && sameLWW(x.Volume, y.Volume) &&
			sameLWW(x.Pan, y.Pan) && sameLWW(x.Color, y.Color) && sameLWW(x.Deleted, y.Deleted)
	})
}

func sameLWW[T comparable](a, b crdt.LWWRegister[T]) bool {
	return a.Value == b.Value && a.Writer == b.Writer && a.Clock.Equal(b.Clock)
}
