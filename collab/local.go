// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	"github.com/bureau-foundation/dawsync/messaging"
)

// mutation edits the replica as userID and returns the operation and
// whether it won.
type mutation func(p *project.Project, userID string) (oplog.Operation, bool, error)

// commit runs a local edit. A write that lost its LWW race is neither
// logged nor broadcast. A persistence failure is returned after the
// change has been broadcast and reported; the in-memory replica keeps
// the change.
func (a *Agent) commit(ctx context.Context, mutate mutation, payload func(oplog.Operation) messaging.Payload) (oplog.Operation, bool, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return oplog.Operation{}, false, ErrClosed
	}
	if !a.started {
		a.mu.Unlock()
		return oplog.Operation{}, false, errors.New("collab: agent not initialized")
	}
	op, changed, err := mutate(a.project, a.cfg.UserID)
	if err != nil || !changed {
		a.mu.Unlock()
		return op, false, err
	}
	op.Dependencies = a.log.Dependencies(op.UserID, op.Target.BoxUUID)
	if _, err := a.log.Append(op); err != nil {
		a.mu.Unlock()
		return oplog.Operation{}, false, fmt.Errorf("collab: logging local operation: %w", err)
	}
	a.log.MarkApplied(op.ID)
	a.mu.Unlock()

	a.broadcast(ctx, payload(op))
	persistErr := a.persist(ctx, []oplog.Operation{op})
	a.notify(Change{Origin: OriginLocal, UserID: a.cfg.UserID, Operations: []oplog.Operation{op}})
	if persistErr != nil {
		return op, true, fmt.Errorf("collab: %w", persistErr)
	}
	return op, true, nil
}

func regionAdded(op oplog.Operation) messaging.Payload {
	return &messaging.RegionAdded{Operation: op}
}

func regionDeleted(op oplog.Operation) messaging.Payload {
	return &messaging.RegionDeleted{Operation: op}
}

// regionUpdated carries the written value: the single field for a
// one-field write, the whole data object otherwise.
func regionUpdated(op oplog.Operation) messaging.Payload {
	value := json.RawMessage(op.Data)
	if fields, err := op.Fields(); err == nil {
		if single, ok := fields[op.Target.FieldPath]; ok {
			value = single
		}
	}
	return &messaging.RegionUpdated{Field: op.Target.FieldPath, Value: value, Operation: op}
}

func delta(op oplog.Operation) messaging.Payload {
	return &messaging.Delta{Changes: []oplog.Operation{op}}
}

// AddTrack creates a track.
func (a *Agent) AddTrack(ctx context.Context, trackID, name string) error {
	_, _, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		op, err := p.AddTrack(trackID, name, userID)
		return op, err == nil, err
	}, delta)
	return err
}

// AddAudioRegion places a new region on a track and returns its id.
func (a *Agent) AddAudioRegion(ctx context.Context, trackID string, start, end float64, fileName string) (string, error) {
	op, _, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		op, err := p.AddRegion(trackID, start, end, fileName, userID)
		return op, err == nil, err
	}, regionAdded)
	if op.ID == "" {
		return "", err
	}
	return op.Target.BoxUUID, err
}

// UpdateRegionPosition moves a region. It reports whether the write
// won.
func (a *Agent) UpdateRegionPosition(ctx context.Context, regionID string, start, end float64) (bool, error) {
	_, changed, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		return p.UpdateRegionPosition(regionID, start, end, userID)
	}, regionUpdated)
	return changed, err
}

// UpdateRegionVolume sets a region's gain.
func (a *Agent) UpdateRegionVolume(ctx context.Context, regionID string, volume float64) (bool, error) {
	_, changed, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		return p.UpdateRegionVolume(regionID, volume, userID)
	}, regionUpdated)
	return changed, err
}

// UpdateRegionPan sets a region's stereo position.
func (a *Agent) UpdateRegionPan(ctx context.Context, regionID string, pan float64) (bool, error) {
	_, changed, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		return p.UpdateRegionPan(regionID, pan, userID)
	}, regionUpdated)
	return changed, err
}

// DeleteRegion tombstones a region. Deleting an already deleted region
// reports false.
func (a *Agent) DeleteRegion(ctx context.Context, regionID string) (bool, error) {
	_, changed, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		return p.RemoveRegion(regionID, userID)
	}, regionDeleted)
	return changed, err
}

// SetTrackMute mutes or unmutes a track.
func (a *Agent) SetTrackMute(ctx context.Context, trackID string, mute bool) (bool, error) {
	_, changed, err := a.commit(ctx, func(p *project.Project, userID string) (oplog.Operation, bool, error) {
		return p.SetTrackMute(trackID, mute, userID)
	}, delta)
	return changed, err
}
