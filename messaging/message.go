// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Type is the wire tag of a payload kind.
type Type string

const (
	TypeRegionAdded   Type = "CRDT_REGION_ADDED"
	TypeRegionUpdated Type = "CRDT_REGION_UPDATED"
	TypeRegionDeleted Type = "CRDT_REGION_DELETED"
	TypeDelta         Type = "CRDT_DELTA"
	TypeSyncRequest   Type = "CRDT_SYNC_REQUEST"
	TypeSyncResponse  Type = "CRDT_SYNC_RESPONSE"
)

// Message is one peer message.
type Message struct {
	ProjectID string
	UserID    string
	// To addresses a single peer. Empty means every peer of the
	// project.
	To        string
	Timestamp time.Time
	Payload   Payload
}

// For reports whether userID should receive m.
func (m Message) For(userID string) bool {
	return m.To == "" || m.To == userID
}

// Payload is implemented only by the payload kinds in this package.
type Payload interface {
	Type() Type
	dispatch(ctx context.Context, h Handler, msg Message) error
}

// Handler handles every payload kind.
type Handler interface {
	HandleRegionAdded(ctx context.Context, msg Message, payload *RegionAdded) error
	HandleRegionUpdated(ctx context.Context, msg Message, payload *RegionUpdated) error
	HandleRegionDeleted(ctx context.Context, msg Message, payload *RegionDeleted) error
	HandleDelta(ctx context.Context, msg Message, payload *Delta) error
	HandleSyncRequest(ctx context.Context, msg Message, payload *SyncRequest) error
	HandleSyncResponse(ctx context.Context, msg Message, payload *SyncResponse) error
}

// Dispatch calls the Handler method for msg's payload kind.
func Dispatch(ctx context.Context, h Handler, msg Message) error {
	if msg.Payload == nil {
		return fmt.Errorf("message from %s has no payload", msg.UserID)
	}
	return msg.Payload.dispatch(ctx, h, msg)
}

// RegionAdded carries the box_add of a new region.
type RegionAdded struct {
	Operation oplog.Operation `json:"operation"`
}

// RegionUpdated carries a write to one region field. Field and Value
// duplicate the operation's data for receivers that only display.
type RegionUpdated struct {
	Field     string          `json:"field"`
	Value     json.RawMessage `json:"value"`
	Operation oplog.Operation `json:"operation"`
}

// RegionDeleted carries the box_remove of a region.
type RegionDeleted struct {
	Operation oplog.Operation `json:"operation"`
}

// Delta carries a batch of operations.
type Delta struct {
	Changes []oplog.Operation `json:"changes"`
}

// SyncRequest asks peers for what the sender has not applied.
type SyncRequest struct {
	LastKnownTimestamp vclock.VectorClock `json:"lastKnownTimestamp"`
	Missing            []string           `json:"missing,omitempty"`
}

// SyncResponse answers a SyncRequest. FullState is set for a cold
// start.
type SyncResponse struct {
	Changes   []oplog.Operation `json:"changes,omitempty"`
	FullState *project.State    `json:"fullState,omitempty"`
}

func (*RegionAdded) Type() Type   { return TypeRegionAdded }
func (*RegionUpdated) Type() Type { return TypeRegionUpdated }
func (*RegionDeleted) Type() Type { return TypeRegionDeleted }
func (*Delta) Type() Type         { return TypeDelta }
func (*SyncRequest) Type() Type   { return TypeSyncRequest }
func (*SyncResponse) Type() Type  { return TypeSyncResponse }

func (p *RegionAdded) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleRegionAdded(ctx, msg, p)
}

func (p *RegionUpdated) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleRegionUpdated(ctx, msg, p)
}

func (p *RegionDeleted) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleRegionDeleted(ctx, msg, p)
}

func (p *Delta) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleDelta(ctx, msg, p)
}

func (p *SyncRequest) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleSyncRequest(ctx, msg, p)
}

func (p *SyncResponse) dispatch(ctx context.Context, h Handler, msg Message) error {
	return h.HandleSyncResponse(ctx, msg, p)
}

// Operations returns the operations a payload carries, in message
// order. SyncRequest carries none.
func Operations(payload Payload) []oplog.Operation {
	switch p := payload.(type) {
	case *RegionAdded:
		return []oplog.Operation{p.Operation}
	case *RegionUpdated:
		return []oplog.Operation{p.Operation}
	case *RegionDeleted:
		return []oplog.Operation{p.Operation}
	case *Delta:
		return p.Changes
	case *SyncResponse:
		return p.Changes
	}
	return nil
}
