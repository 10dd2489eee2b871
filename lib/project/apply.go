// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/dawsync/lib/oplog"
)

// Apply merges one operation into the replica. It reports whether any
// register or set changed. A malformed operation returns a
// *oplog.ValidationError and leaves the replica untouched.
func (p *Project) Apply(op oplog.Operation) (bool, error) {
	if err := op.Validate(); err != nil {
		return false, err
	}
	fields, err := op.Fields()
	if err != nil {
		return false, err
	}

	var changed bool
	switch op.Target.BoxKind {
	case oplog.KindRegion:
		changed, err = p.applyRegion(&op, fields)
	case oplog.KindTrack:
		changed, err = p.applyTrack(&op, fields)
	case oplog.KindProject:
		changed, err = p.applyProject(&op, fields)
	}
	if err != nil {
		return false, reject(&op, err)
	}
	p.clock.Merge(op.Timestamp)
	return changed, nil
}

func reject(op *oplog.Operation, err error) error {
	return &oplog.ValidationError{OperationID: op.ID, Reason: err.Error(), Err: err}
}

func (p *Project) applyRegion(op *oplog.Operation, fields map[string]json.RawMessage) (bool, error) {
	switch op.Type {
	case oplog.BoxAdd:
		var trackID string
		raw, ok := fields[FieldTrackID]
		if !ok {
			return false, fmt.Errorf("region add without %s", FieldTrackID)
		}
		if err := json.Unmarshal(raw, &trackID); err != nil || trackID == "" {
			return false, fmt.Errorf("region add with invalid %s %s", FieldTrackID, raw)
		}
		if existing, ok := p.regions[op.Target.BoxUUID]; ok && existing.Added() && existing.TrackID != trackID {
			return false, fmt.Errorf("region %s already belongs to track %s", op.Target.BoxUUID, existing.TrackID)
		}
		delete(fields, FieldTrackID)

		if err := checkFields((&Region{}).fields(), fields); err != nil {
			return false, err
		}
		region, _ := p.region(op.Target.BoxUUID)
		commits, _ := bindAll(region.fields(), fields)
		changed := region.setOrigin(trackID, op.UserID, op.Timestamp)
		if runAll(commits, op.Timestamp, op.UserID) {
			changed = true
		}
		track, _ := p.track(trackID)
		if track.Regions.Add(region.ID) {
			changed = true
		}
		return changed, nil

	case oplog.BoxModify:
		if _, immutable := fields[FieldTrackID]; immutable {
			return false, fmt.Errorf("%s cannot be modified", FieldTrackID)
		}
		if err := checkFields((&Region{}).fields(), fields); err != nil {
			return false, err
		}
		region, _ := p.region(op.Target.BoxUUID)
		return writeFields(op, region.fields(), fields), nil

	case oplog.BoxRemove:
		region, _ := p.region(op.Target.BoxUUID)
		return region.Deleted.Set(true, op.Timestamp, op.UserID), nil
	}
	return false, fmt.Errorf("%s does not apply to a region", op.Type)
}

func (p *Project) applyTrack(op *oplog.Operation, fields map[string]json.RawMessage) (bool, error) {
	switch op.Type {
	case oplog.BoxAdd, oplog.BoxModify:
		if err := checkFields((&Track{}).fields(), fields); err != nil {
			return false, err
		}
		track, created := p.track(op.Target.BoxUUID)
		changed := writeFields(op, track.fields(), fields)
		return changed || created, nil

	case oplog.ConnectionChange:
		if op.Target.FieldPath != PathEffects {
			return false, fmt.Errorf("unknown track connection %q", op.Target.FieldPath)
		}
		var effectID string
		if err := json.Unmarshal(fields[FieldEffect], &effectID); err != nil || effectID == "" {
			return false, fmt.Errorf("connection without a valid %s", FieldEffect)
		}
		track, created := p.track(op.Target.BoxUUID)
		return track.Effects.Add(effectID) || created, nil
	}
	return false, fmt.Errorf("%s does not apply to a track", op.Type)
}

func (p *Project) applyProject(op *oplog.Operation, fields map[string]json.RawMessage) (bool, error) {
	if op.Target.BoxUUID != p.id {
		return false, fmt.Errorf("operation targets project %s, replica is %s", op.Target.BoxUUID, p.id)
	}
	if op.Type != oplog.BoxModify {
		return false, fmt.Errorf("%s does not apply to the project", op.Type)
	}
	if err := checkFields(p.fields(), fields); err != nil {
		return false, err
	}
	return writeFields(op, p.fields(), fields), nil
}

// checkFields decodes fields against a table without writing, so a
// box is only materialized for operations that will apply.
func checkFields(table map[string]binder, fields map[string]json.RawMessage) error {
	_, err := bindAll(table, fields)
	return err
}

// writeFields commits fields that checkFields already accepted.
func writeFields(op *oplog.Operation, table map[string]binder, fields map[string]json.RawMessage) bool {
	commits, _ := bindAll(table, fields)
	return runAll(commits, op.Timestamp, op.UserID)
}
