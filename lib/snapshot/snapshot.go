// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Magic opens every snapshot.
var Magic = [4]byte{'D', 'A', 'W', 'P'}

// Version is the payload version Encode writes.
const Version = 1

const headerSize = 8

// Payload is the JSON body of a snapshot.
type Payload struct {
	Version     int          `json:"version"`
	Metadata    Metadata     `json:"metadata"`
	Boxes       []Box        `json:"boxes"`
	Connections []Connection `json:"connections"`
	Tracks      []Track      `json:"tracks"`
	AudioFiles  []string     `json:"audioFiles"`
}

// Metadata describes the project as a whole.
type Metadata struct {
	ProjectID       string            `json:"projectId"`
	Name            string            `json:"name"`
	BPM             float64           `json:"bpm"`
	TimeSignature   string            `json:"timeSignature"`
	MasterVolume    float64           `json:"masterVolume"`
	TotalOperations int               `json:"totalOperations"`
	Clock           map[string]uint64 `json:"clock"`
}

// Box is one engine box with its primitive fields.
type Box struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
}

// Connection links two boxes.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Track is the mixer view of a track.
type Track struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Volume  float64  `json:"volume"`
	Pan     float64  `json:"pan"`
	Mute    bool     `json:"mute"`
	Solo    bool     `json:"solo"`
	Regions []string `json:"regions"`
	Effects []string `json:"effects"`
}

// SerializationError reports a snapshot that could not be encoded or
// decoded. A rebuild that hits one can be retried.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Encode writes payload in the snapshot format.
func Encode(payload Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SerializationError{Op: "encode", Err: err}
	}
	if len(body) > math.MaxUint32 {
		return nil, &SerializationError{Op: "encode", Err: fmt.Errorf("payload of %d bytes exceeds the length field", len(body))}
	}
	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, Magic[:])
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	return append(out, body...), nil
}

// Decode parses a snapshot, checking the magic, the length field and
// the payload version.
func Decode(data []byte) (Payload, error) {
	if len(data) < headerSize {
		return Payload{}, &SerializationError{Op: "decode", Err: fmt.Errorf("%d bytes is shorter than the header", len(data))}
	}
	if !bytes.Equal(data[:4], Magic[:]) {
		return Payload{}, &SerializationError{Op: "decode", Err: fmt.Errorf("bad magic %q", data[:4])}
	}
	length := binary.LittleEndian.Uint32(data[4:headerSize])
	if int64(length) != int64(len(data)-headerSize) {
		return Payload{}, &SerializationError{
			Op:  "decode",
			Err: fmt.Errorf("length field says %d bytes, %d follow the header", length, len(data)-headerSize),
		}
	}
	var payload Payload
	if err := json.Unmarshal(data[headerSize:], &payload); err != nil {
		return Payload{}, &SerializationError{Op: "decode", Err: err}
	}
	if payload.Version != Version {
		return Payload{}, &SerializationError{Op: "decode", Err: fmt.Errorf("unsupported version %d", payload.Version)}
	}
	return payload, nil
}
