// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"slices"
	"strings"

	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
)

// Connection kinds.
const (
	ConnectionTrack  = "track"
	ConnectionEffect = "effect"
)

// FromProject flattens a replica. Tombstoned regions and regions whose
// add has not been applied are left out.
func FromProject(p *project.Project, totalOperations int) Payload {
	payload := Payload{
		Version: Version,
		Metadata: Metadata{
			ProjectID:       p.ID(),
			Name:            p.Name(),
			BPM:             p.BPM(),
			TimeSignature:   p.TimeSignature(),
			MasterVolume:    p.MasterVolume(),
			TotalOperations: totalOperations,
			Clock:           p.Clock(),
		},
		Boxes:       []Box{},
		Connections: []Connection{},
		Tracks:      []Track{},
		AudioFiles:  []string{},
	}

	payload.Boxes = append(payload.Boxes, Box{
		ID:   p.ID(),
		Kind: oplog.KindProject,
		Fields: map[string]any{
			project.FieldName:          p.Name(),
			project.FieldBPM:           p.BPM(),
			project.FieldTimeSignature: p.TimeSignature(),
			project.FieldMasterVolume:  p.MasterVolume(),
		},
	})

	files := make(map[string]struct{})
	for _, trackID := range p.TrackIDs() {
		state, _ := p.Track(trackID)
		track := Track{
			ID:      state.ID,
			Name:    state.Name.Value,
			Volume:  state.Volume.Value,
			Pan:     state.Pan.Value,
			Mute:    state.Mute.Value,
			Solo:    state.Solo.Value,
			Regions: []string{},
			Effects: state.Effects,
		}
		if state.Volume.IsZero() {
			track.Volume = project.DefaultVolume
		}
		if track.Effects == nil {
			track.Effects = []string{}
		}
		payload.Boxes = append(payload.Boxes, Box{
			ID:   state.ID,
			Kind: oplog.KindTrack,
			Fields: map[string]any{
				project.FieldName:   track.Name,
				project.FieldVolume: track.Volume,
				project.FieldPan:    track.Pan,
				project.FieldMute:   track.Mute,
				project.FieldSolo:   track.Solo,
			},
		})
		for _, effect := range track.Effects {
			payload.Connections = append(payload.Connections, Connection{From: state.ID, To: effect, Kind: ConnectionEffect})
		}

		for _, region := range p.ActiveRegions(trackID) {
			track.Regions = append(track.Regions, region.ID)
			payload.Boxes = append(payload.Boxes, Box{
				ID:   region.ID,
				Kind: oplog.KindRegion,
				Fields: map[string]any{
					project.FieldStartTime: region.StartTime.Value,
					project.FieldEndTime:   region.EndTime.Value,
					project.FieldFileName:  region.FileName.Value,
					project.FieldVolume:    region.Volume.Value,
					project.FieldPan:       region.Pan.Value,
					project.FieldColor:     region.Color.Value,
					"createdBy":            region.CreatedBy,
				},
			})
			payload.Connections = append(payload.Connections, Connection{From: region.ID, To: trackID, Kind: ConnectionTrack})
			if name := region.FileName.Value; name != "" {
				files[name] = struct{}{}
			}
		}
		slices.Sort(track.Regions)
		payload.Tracks = append(payload.Tracks, track)
	}

	for name := range files {
		payload.AudioFiles = append(payload.AudioFiles, name)
	}
	slices.Sort(payload.AudioFiles)
	slices.SortFunc(payload.Boxes, func(a, b Box) int {
		if a.Kind != b.Kind {
			return kindRank(a.Kind) - kindRank(b.Kind)
		}
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(payload.Connections, func(a, b Connection) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		if c := strings.Compare(a.To, b.To); c != 0 {
			return c
		}
		return strings.Compare(a.Kind, b.Kind)
	})
	return payload
}

func kindRank(kind string) int {
	switch kind {
	case oplog.KindProject:
		return 0
	case oplog.KindTrack:
		return 1
	default:
		return 2
	}
}

