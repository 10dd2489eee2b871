// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"github.com/bureau-foundation/dawsync/lib/crdt"
)

// Track is a mixer channel holding regions and an effect chain.
type Track struct {
	ID string

	Name   crdt.LWWRegister[string]
	Volume crdt.LWWRegister[float64]
	Pan    crdt.LWWRegister[float64]
	Mute   crdt.LWWRegister[bool]
	Solo   crdt.LWWRegister[bool]

	Regions crdt.GSet[string]
	Effects crdt.GSet[string]
}

// TrackState is the serializable form of a Track.
type TrackState struct {
	ID      string                    `json:"id"`
	Name    crdt.LWWRegister[string]  `json:"name"`
	Volume  crdt.LWWRegister[float64] `json:"volume"`
	Pan     crdt.LWWRegister[float64] `json:"pan"`
	Mute    crdt.LWWRegister[bool]    `json:"mute"`
	Solo    crdt.LWWRegister[bool]    `json:"solo"`
	Regions []string                  `json:"regions"`
	Effects []string                  `json:"effects"`
}

func (t *Track) fields() map[string]binder {
	return map[string]binder{
		FieldName:   bind(&t.Name, nil),
		FieldVolume: bind(&t.Volume, volumeRange),
		FieldPan:    bind(&t.Pan, panRange),
		FieldMute:   bind(&t.Mute, nil),
		FieldSolo:   bind(&t.Solo, nil),
	}
}

func (t *Track) register(field string) (string, bool) {
	switch field {
	case FieldName:
		return t.Name.LastWriter(), true
	case FieldVolume:
		return t.Volume.LastWriter(), true
	case FieldPan:
		return t.Pan.LastWriter(), true
	case FieldMute:
		return t.Mute.LastWriter(), true
	case FieldSolo:
		return t.Solo.LastWriter(), true
	}
	return "", false
}

func (t *Track) merge(other *Track) bool {
	changed := false
	for _, merged := range []bool{
		t.Name.Merge(other.Name),
		t.Volume.Merge(other.Volume),
		t.Pan.Merge(other.Pan),
		t.Mute.Merge(other.Mute),
		t.Solo.Merge(other.Solo),
		t.Regions.Merge(other.Regions),
		t.Effects.Merge(other.Effects),
	} {
		changed = changed || merged
	}
	return changed
}

func (t *Track) state() TrackState {
	state := TrackState{
		ID:      t.ID,
		Name:    t.Name,
		Volume:  t.Volume,
		Pan:     t.Pan,
		Mute:    t.Mute,
		Solo:    t.Solo,
		Regions: t.Regions.Elements(),
		Effects: t.Effects.Elements(),
	}
	state.Name.Clock = t.Name.Clock.Clone()
	state.Volume.Clock = t.Volume.Clock.Clone()
	state.Pan.Clock = t.Pan.Clock.Clone()
	state.Mute.Clock = t.Mute.Clock.Clone()
	state.Solo.Clock = t.Solo.Clock.Clone()
	return state
}

func trackFromState(state TrackState) *Track {
	track := &Track{
		ID:      state.ID,
		Name:    state.Name,
		Volume:  state.Volume,
		Pan:     state.Pan,
		Mute:    state.Mute,
		Solo:    state.Solo,
		Regions: crdt.NewGSet(state.Regions...),
		Effects: crdt.NewGSet(state.Effects...),
	}
	return track
}
