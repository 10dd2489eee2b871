// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecodeError reports a message that could not be decoded.
type DecodeError struct {
	Type   Type
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return "decoding message: " + e.Reason
	}
	return fmt.Sprintf("decoding %s message: %s", e.Type, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	Type      Type            `json:"type"`
	ProjectID string          `json:"projectId"`
	UserID    string          `json:"userId"`
	To        string          `json:"to,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON encodes the wire envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encoding message from %s: no payload", m.UserID)
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", m.Payload.Type(), err)
	}
	var millis int64
	if !m.Timestamp.IsZero() {
		millis = m.Timestamp.UnixMilli()
	}
	return json.Marshal(envelope{
		Type:      m.Payload.Type(),
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		To:        m.To,
		Data:      data,
		Timestamp: millis,
	})
}

// UnmarshalJSON decodes the wire envelope. Errors are *DecodeError.
func (m *Message) UnmarshalJSON(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &DecodeError{Reason: "malformed envelope", Err: err}
	}

	var payload Payload
	switch env.Type {
	case TypeRegionAdded:
		payload = &RegionAdded{}
	case TypeRegionUpdated:
		payload = &RegionUpdated{}
	case TypeRegionDeleted:
		payload = &RegionDeleted{}
	case TypeDelta:
		payload = &Delta{}
	case TypeSyncRequest:
		payload = &SyncRequest{}
	case TypeSyncResponse:
		payload = &SyncResponse{}
	case "":
		return &DecodeError{Reason: "missing type"}
	default:
		return &DecodeError{Type: env.Type, Reason: "unknown message type"}
	}
	if env.ProjectID == "" || env.UserID == "" {
		return &DecodeError{Type: env.Type, Reason: "missing projectId or userId"}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &DecodeError{Type: env.Type, Reason: "missing data"}
	}
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return &DecodeError{Type: env.Type, Reason: "malformed data", Err: err}
	}

	*m = Message{ProjectID: env.ProjectID, UserID: env.UserID, To: env.To, Payload: payload}
	if env.Timestamp != 0 {
		m.Timestamp = time.UnixMilli(env.Timestamp)
	}
	return nil
}

// Decode parses one wire message.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Encode renders one wire message.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
