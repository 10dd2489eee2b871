// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/dawsync/lib/project"
)

func demoProject(t *testing.T) *project.Project {
	t.Helper()
	p := project.New("project-1")
	if _, err := p.AddTrack("t1", "Drums", "alice"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	kick, err := p.AddRegion("t1", 0, 4, "kick.wav", "alice")
	if err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if _, err := p.AddRegion("t1", 4, 8, "kick.wav", "alice"); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if _, err := p.AddRegion("t2", 0, 8, "pad.wav", "bob"); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	gone, err := p.AddRegion("t2", 8, 9, "gone.wav", "bob")
	if err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if _, _, err := p.RemoveRegion(gone.Target.BoxUUID, "bob"); err != nil {
		t.Fatalf("RemoveRegion: %v", err)
	}
	if _, _, err := p.AddEffect("t1", "compressor", "alice"); err != nil {
		t.Fatalf("AddEffect: %v", err)
	}
	if _, _, err := p.UpdateRegionVolume(kick.Target.BoxUUID, 0.5, "alice"); err != nil {
		t.Fatalf("UpdateRegionVolume: %v", err)
	}
	return p
}

func TestEncodeDecode(t *testing.T) {
	payload := FromProject(demoProject(t), 8)
	data, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(data[:4], []byte("DAWP")) {
		t.Fatalf("magic = %q", data[:4])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Fatalf("length field = %d, body is %d bytes", got, len(data)-8)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Metadata.ProjectID != "project-1" || decoded.Metadata.TotalOperations != 8 {
		t.Fatalf("metadata = %+v", decoded.Metadata)
	}
	if !slices.Equal(decoded.AudioFiles, []string{"kick.wav", "pad.wav"}) {
		t.Fatalf("audio files = %v, want distinct files of active regions", decoded.AudioFiles)
	}
	// project + 2 tracks + 3 active regions
	if len(decoded.Boxes) != 6 {
		t.Fatalf("boxes = %d, want 6", len(decoded.Boxes))
	}
	if decoded.Boxes[0].Kind != "project" || decoded.Boxes[1].Kind != "track" || decoded.Boxes[5].Kind != "region" {
		t.Fatalf("boxes not grouped by kind: %+v", decoded.Boxes)
	}
	// 3 region->track + 1 track->effect
	if len(decoded.Connections) != 4 {
		t.Fatalf("connections = %+v", decoded.Connections)
	}
	if decoded.Tracks[0].Name != "Drums" || !slices.Equal(decoded.Tracks[0].Effects, []string{"compressor"}) {
		t.Fatalf("track t1 = %+v", decoded.Tracks[0])
	}
	if decoded.Tracks[1].Volume != project.DefaultVolume {
		t.Fatalf("implicit track volume = %v, want default", decoded.Tracks[1].Volume)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	p := demoProject(t)
	first, err := Encode(FromProject(p, 8))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Encode(FromProject(p, 8))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs", i)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(Payload{Version: Version})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wrongVersion, err := Encode(Payload{Version: 99})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	badMagic := slices.Clone(valid)
	copy(badMagic, "RIFF")
	badJSON := append(slices.Clone(valid[:8]), bytes.Repeat([]byte{'{'}, len(valid)-8)...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:5]},
		{"bad magic", badMagic},
		{"truncated body", valid[:len(valid)-1]},
		{"trailing bytes", append(slices.Clone(valid), ' ')},
		{"invalid json", badJSON},
		{"unsupported version", wrongVersion},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(test.data)
			var serializationError *SerializationError
			if !errors.As(err, &serializationError) {
				t.Fatalf("Decode = %v, want *SerializationError", err)
			}
		})
	}
}
