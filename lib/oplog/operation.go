// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Type is the kind of change an operation makes.
type Type string

const (
	// BoxAdd creates a box (region, track) with its initial fields.
	BoxAdd Type = "box_add"
	// BoxRemove tombstones a box.
	BoxRemove Type = "box_remove"
	// BoxModify writes one or more primitive fields of a box.
	BoxModify Type = "box_modify"
	// ConnectionChange links a box to another box (a track to an
	// effect).
	ConnectionChange Type = "connection_change"
)

// Box kinds an operation may target.
const (
	KindProject = "project"
	KindTrack   = "track"
	KindRegion  = "region"
)

// Target addresses the box an operation changes. FieldPath names the
// field for box_modify and connection_change and is empty otherwise.
type Target struct {
	BoxUUID   string `json:"boxUuid" validate:"required"`
	BoxKind   string `json:"boxKind" validate:"required,oneof=project track region"`
	FieldPath string `json:"fieldPath,omitempty"`
}

// Operation is one immutable change to a project. Data is a JSON
// object mapping field names to values; its shape depends on Type and
// Target.BoxKind.
type Operation struct {
	ID           string             `json:"id" validate:"required"`
	Type         Type               `json:"type" validate:"required,oneof=box_add box_remove box_modify connection_change"`
	Target       Target             `json:"target"`
	Data         json.RawMessage    `json:"data,omitempty"`
	UserID       string             `json:"userId" validate:"required"`
	Timestamp    vclock.VectorClock `json:"timestamp" validate:"required,min=1"`
	Dependencies []string           `json:"dependencies,omitempty" validate:"dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the operation's shape. It returns a *ValidationError
// describing the first problem found.
func (op *Operation) Validate() error {
	if err := validate.Struct(op); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return &ValidationError{
				OperationID: op.ID,
				Reason:      fmt.Sprintf("%s fails %q", first.Namespace(), first.Tag()),
				Err:         err,
			}
		}
		return &ValidationError{OperationID: op.ID, Reason: "invalid operation", Err: err}
	}

	if op.Timestamp.Get(op.UserID) == 0 {
		return &ValidationError{
			OperationID: op.ID,
			Reason:      fmt.Sprintf("timestamp %s has no event for author %q", op.Timestamp, op.UserID),
		}
	}
	if slices.Contains(op.Dependencies, op.ID) {
		return &ValidationError{OperationID: op.ID, Reason: "operation depends on itself"}
	}

	switch op.Type {
	case BoxModify, ConnectionChange:
		if op.Target.FieldPath == "" {
			return &ValidationError{OperationID: op.ID, Reason: string(op.Type) + " requires a field path"}
		}
	case BoxRemove:
		if op.Target.BoxKind != KindRegion {
			return &ValidationError{
				OperationID: op.ID,
				Reason:      fmt.Sprintf("cannot remove a %s box", op.Target.BoxKind),
			}
		}
	case BoxAdd:
		if op.Target.BoxKind == KindProject {
			return &ValidationError{OperationID: op.ID, Reason: "the project box cannot be added"}
		}
	}

	if len(op.Data) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(op.Data, &fields); err != nil {
			return &ValidationError{OperationID: op.ID, Reason: "data is not a JSON object", Err: err}
		}
	}
	return nil
}

// Fields decodes Data into its field map. An empty Data yields an
// empty map.
func (op *Operation) Fields() (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(op.Data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(op.Data, &fields); err != nil {
		return nil, &ValidationError{OperationID: op.ID, Reason: "data is not a JSON object", Err: err}
	}
	return fields, nil
}

// String renders a short description for logs.
func (op *Operation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s/%s", op.ID, op.Type, op.Target.BoxKind, op.Target.BoxUUID)
	if op.Target.FieldPath != "" {
		b.WriteString("." + op.Target.FieldPath)
	}
	fmt.Fprintf(&b, " by %s at %s", op.UserID, op.Timestamp)
	return b.String()
}

// Clone returns a deep copy.
func (op Operation) Clone() Operation {
	op.Data = slices.Clone(op.Data)
	op.Timestamp = op.Timestamp.Clone()
	op.Dependencies = slices.Clone(op.Dependencies)
	return op
}

// compare orders operations by their (timestamp, author) stamp, the
// order registers resolve writes in, then by operation id. Replaying
// in this order means every write beats the ones before it.
func compare(a, b *Operation) int {
	if c := vclock.CompareStamps(a.Timestamp, a.UserID, b.Timestamp, b.UserID); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort orders ops in place causally and deterministically.
func Sort(ops []Operation) {
	slices.SortFunc(ops, func(a, b Operation) int { return compare(&a, &b) })
}
