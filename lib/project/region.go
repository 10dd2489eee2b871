// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"github.com/bureau-foundation/dawsync/lib/crdt"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Region is an audio clip placed on a track. ID, TrackID, CreatedBy
// and CreatedAt are set once by the operation that added the region; a
// region materialized by an update that arrived before its add has
// them empty until the add is applied.
type Region struct {
	ID        string             `json:"id"`
	TrackID   string             `json:"trackId"`
	CreatedBy string             `json:"createdBy"`
	CreatedAt vclock.VectorClock `json:"createdAt"`

	StartTime crdt.LWWRegister[float64] `json:"startTime"`
	EndTime   crdt.LWWRegister[float64] `json:"endTime"`
	FileName  crdt.LWWRegister[string]  `json:"fileName"`
	Volume    crdt.LWWRegister[float64] `json:"volume"`
	Pan       crdt.LWWRegister[float64] `json:"pan"`
	Color     crdt.LWWRegister[string]  `json:"color"`
	Deleted   crdt.LWWRegister[bool]    `json:"deleted"`
}

// IsDeleted reports whether the region is tombstoned.
func (r *Region) IsDeleted() bool { return r.Deleted.Value }

// Added reports whether the operation that created the region has been
// applied.
func (r *Region) Added() bool { return r.TrackID != "" }

func (r *Region) fields() map[string]binder {
	return map[string]binder{
		FieldStartTime: bind(&r.StartTime, nonNegative),
		FieldEndTime:   bind(&r.EndTime, nonNegative),
		FieldFileName:  bind(&r.FileName, nonEmpty),
		FieldVolume:    bind(&r.Volume, volumeRange),
		FieldPan:       bind(&r.Pan, panRange),
		FieldColor:     bind(&r.Color, nil),
	}
}

func (r *Region) register(field string) (writer string, ok bool) {
	switch field {
	case FieldStartTime:
		return r.StartTime.LastWriter(), true
	case FieldEndTime:
		return r.EndTime.LastWriter(), true
	case FieldFileName:
		return r.FileName.LastWriter(), true
	case FieldVolume:
		return r.Volume.LastWriter(), true
	case FieldPan:
		return r.Pan.LastWriter(), true
	case FieldColor:
		return r.Color.LastWriter(), true
	case FieldDeleted:
		return r.Deleted.LastWriter(), true
	}
	return "", false
}

// setOrigin records the immutable creation fields. Only an empty
// region is filled, so the first add applied wins and later adds with
// the same id (which a well-formed peer never mints) cannot move it.
func (r *Region) setOrigin(trackID, createdBy string, createdAt vclock.VectorClock) bool {
	if r.TrackID != "" {
		return false
	}
	r.TrackID = trackID
	r.CreatedBy = createdBy
	r.CreatedAt = createdAt.Clone()
	return true
}

func (r *Region) merge(other *Region) bool {
	changed := false
	if other.Added() && r.setOrigin(other.TrackID, other.CreatedBy, other.CreatedAt) {
		changed = true
	}
	for _, merged := range []bool{
		r.StartTime.Merge(other.StartTime),
		r.EndTime.Merge(other.EndTime),
		r.FileName.Merge(other.FileName),
		r.Volume.Merge(other.Volume),
		r.Pan.Merge(other.Pan),
		r.Color.Merge(other.Color),
		r.Deleted.Merge(other.Deleted),
	} {
		changed = changed || merged
	}
	return changed
}

func (r *Region) clone() Region {
	out := *r
	out.CreatedAt = r.CreatedAt.Clone()
	out.StartTime.Clock = r.StartTime.Clock.Clone()
	out.EndTime.Clock = r.EndTime.Clock.Clone()
	out.FileName.Clock = r.FileName.Clock.Clone()
	out.Volume.Clock = r.Volume.Clock.Clone()
	out.Pan.Clock = r.Pan.Clock.Clone()
	out.Color.Clock = r.Color.Clock.Clone()
	out.Deleted.Clock = r.Deleted.Clock.Clone()
	return out
}
