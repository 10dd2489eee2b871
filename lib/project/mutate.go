// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dawsync/lib/oplog"
)

// local stamps a new operation with the replica clock advanced for
// userID, applies it, and returns it. The replica clock only advances
// when the operation applies.
func (p *Project) local(opType oplog.Type, target oplog.Target, userID string, data map[string]any) (oplog.Operation, bool, error) {
	if userID == "" {
		return oplog.Operation{}, false, errors.New("local operation without a user id")
	}
	op := oplog.Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Target:    target,
		UserID:    userID,
		Timestamp: p.clock.Clone().Increment(userID),
	}
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return oplog.Operation{}, false, fmt.Errorf("encoding operation data: %w", err)
		}
		op.Data = encoded
	}
	changed, err := p.Apply(op)
	if err != nil {
		var validationError *oplog.ValidationError
		if errors.As(err, &validationError) && validationError.Err != nil {
			return oplog.Operation{}, false, validationError.Err
		}
		return oplog.Operation{}, false, err
	}
	return op, changed, nil
}

func (p *Project) liveRegion(id string) (*Region, error) {
	region, ok := p.regions[id]
	if !ok || !region.Added() {
		return nil, fmt.Errorf("region %s: %w", id, ErrNotFound)
	}
	if region.IsDeleted() {
		return nil, fmt.Errorf("region %s: %w", id, ErrDeleted)
	}
	return region, nil
}

func (p *Project) modifyRegion(id, path, userID string, data map[string]any) (oplog.Operation, bool, error) {
	if _, err := p.liveRegion(id); err != nil {
		return oplog.Operation{}, false, err
	}
	target := oplog.Target{BoxUUID: id, BoxKind: oplog.KindRegion, FieldPath: path}
	return p.local(oplog.BoxModify, target, userID, data)
}

func (p *Project) modifyTrack(id, field, userID string, value any) (oplog.Operation, bool, error) {
	if _, ok := p.tracks[id]; !ok {
		return oplog.Operation{}, false, fmt.Errorf("track %s: %w", id, ErrNotFound)
	}
	target := oplog.Target{BoxUUID: id, BoxKind: oplog.KindTrack, FieldPath: field}
	return p.local(oplog.BoxModify, target, userID, map[string]any{field: value})
}

func (p *Project) modifyProject(field, userID string, value any) (oplog.Operation, bool, error) {
	target := oplog.Target{BoxUUID: p.id, BoxKind: oplog.KindProject, FieldPath: field}
	return p.local(oplog.BoxModify, target, userID, map[string]any{field: value})
}

// AddTrack creates a track. An empty trackID mints a new one; the id is
// the returned operation's Target.BoxUUID.
func (p *Project) AddTrack(trackID, name, userID string) (oplog.Operation, error) {
	if trackID == "" {
		trackID = uuid.NewString()
	}
	target := oplog.Target{BoxUUID: trackID, BoxKind: oplog.KindTrack}
	op, _, err := p.local(oplog.BoxAdd, target, userID, map[string]any{
		FieldName:   name,
		FieldVolume: DefaultVolume,
		FieldPan:    0.0,
		FieldMute:   false,
		FieldSolo:   false,
	})
	return op, err
}

// AddRegion places a new region on a track, creating the track if this
// replica has not seen it. The new region id is the returned
// operation's Target.BoxUUID.
func (p *Project) AddRegion(trackID string, start, end float64, fileName, userID string) (oplog.Operation, error) {
	if trackID == "" {
		return oplog.Operation{}, fmt.Errorf("%w: empty track id", ErrInvalidValue)
	}
	if end <= start {
		return oplog.Operation{}, fmt.Errorf("%w: region ends at %v before it starts at %v", ErrInvalidValue, end, start)
	}
	target := oplog.Target{BoxUUID: uuid.NewString(), BoxKind: oplog.KindRegion}
	op, _, err := p.local(oplog.BoxAdd, target, userID, map[string]any{
		FieldTrackID:   trackID,
		FieldStartTime: start,
		FieldEndTime:   end,
		FieldFileName:  fileName,
		FieldVolume:    DefaultVolume,
		FieldPan:       0.0,
		FieldColor:     "",
	})
	return op, err
}

// UpdateRegionPosition moves a region.
func (p *Project) UpdateRegionPosition(regionID string, start, end float64, userID string) (oplog.Operation, bool, error) {
	if end <= start {
		return oplog.Operation{}, false, fmt.Errorf("%w: region ends at %v before it starts at %v", ErrInvalidValue, end, start)
	}
	return p.modifyRegion(regionID, PathPosition, userID, map[string]any{
		FieldStartTime: start,
		FieldEndTime:   end,
	})
}

// UpdateRegionVolume sets a region's gain.
func (p *Project) UpdateRegionVolume(regionID string, volume float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyRegion(regionID, FieldVolume, userID, map[string]any{FieldVolume: volume})
}

// UpdateRegionPan sets a region's stereo position.
func (p *Project) UpdateRegionPan(regionID string, pan float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyRegion(regionID, FieldPan, userID, map[string]any{FieldPan: pan})
}

// UpdateRegionColor sets a region's display color.
func (p *Project) UpdateRegionColor(regionID, color, userID string) (oplog.Operation, bool, error) {
	return p.modifyRegion(regionID, FieldColor, userID, map[string]any{FieldColor: color})
}

// UpdateRegionFileName points a region at a different audio file.
func (p *Project) UpdateRegionFileName(regionID, fileName, userID string) (oplog.Operation, bool, error) {
	return p.modifyRegion(regionID, FieldFileName, userID, map[string]any{FieldFileName: fileName})
}

// RemoveRegion tombstones a region. Removing an already tombstoned
// region is a no-op that returns a zero Operation and changed=false.
func (p *Project) RemoveRegion(regionID, userID string) (oplog.Operation, bool, error) {
	if _, err := p.liveRegion(regionID); err != nil {
		if errors.Is(err, ErrDeleted) {
			return oplog.Operation{}, false, nil
		}
		return oplog.Operation{}, false, err
	}
	target := oplog.Target{BoxUUID: regionID, BoxKind: oplog.KindRegion}
	return p.local(oplog.BoxRemove, target, userID, nil)
}

// SetTrackName renames a track.
func (p *Project) SetTrackName(trackID, name, userID string) (oplog.Operation, bool, error) {
	return p.modifyTrack(trackID, FieldName, userID, name)
}

// SetTrackVolume sets a track's fader.
func (p *Project) SetTrackVolume(trackID string, volume float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyTrack(trackID, FieldVolume, userID, volume)
}

// SetTrackPan sets a track's stereo position.
func (p *Project) SetTrackPan(trackID string, pan float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyTrack(trackID, FieldPan, userID, pan)
}

// SetTrackMute mutes or unmutes a track.
func (p *Project) SetTrackMute(trackID string, mute bool, userID string) (oplog.Operation, bool, error) {
	return p.modifyTrack(trackID, FieldMute, userID, mute)
}

// SetTrackSolo solos or unsolos a track.
func (p *Project) SetTrackSolo(trackID string, solo bool, userID string) (oplog.Operation, bool, error) {
	return p.modifyTrack(trackID, FieldSolo, userID, solo)
}

// AddEffect appends an effect to a track's chain.
func (p *Project) AddEffect(trackID, effectID, userID string) (oplog.Operation, bool, error) {
	if _, ok := p.tracks[trackID]; !ok {
		return oplog.Operation{}, false, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	if effectID == "" {
		effectID = uuid.NewString()
	}
	target := oplog.Target{BoxUUID: trackID, BoxKind: oplog.KindTrack, FieldPath: PathEffects}
	return p.local(oplog.ConnectionChange, target, userID, map[string]any{FieldEffect: effectID})
}

// SetName renames the project.
func (p *Project) SetName(name, userID string) (oplog.Operation, bool, error) {
	return p.modifyProject(FieldName, userID, name)
}

// SetBPM sets the tempo.
func (p *Project) SetBPM(bpm float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyProject(FieldBPM, userID, bpm)
}

// SetTimeSignature sets the meter, e.g. "3/4".
func (p *Project) SetTimeSignature(signature, userID string) (oplog.Operation, bool, error) {
	return p.modifyProject(FieldTimeSignature, userID, signature)
}

// SetMasterVolume sets the master gain.
func (p *Project) SetMasterVolume(volume float64, userID string) (oplog.Operation, bool, error) {
	return p.modifyProject(FieldMasterVolume, userID, volume)
}
