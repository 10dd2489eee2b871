// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package updatetask

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
)

// Kind is a native engine task kind.
type Kind string

const (
	New             Kind = "new"
	UpdatePrimitive Kind = "update-primitive"
	UpdatePointer   Kind = "update-pointer"
	Delete          Kind = "delete"
)

// Task is one engine instruction. Which fields are set depends on Kind:
// new carries BoxKind and Payload; update-primitive carries Field and
// Value; update-pointer carries Field and Target; delete only Box.
type Task struct {
	Kind        Kind            `json:"kind"`
	Box         string          `json:"box"`
	BoxKind     string          `json:"boxKind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Field       string          `json:"field,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Target      string          `json:"target,omitempty"`
	OperationID string          `json:"operationId"`
}

func (t Task) String() string {
	switch t.Kind {
	case New:
		return fmt.Sprintf("new %s %s", t.BoxKind, t.Box)
	case UpdatePrimitive:
		return fmt.Sprintf("update-primitive %s.%s = %s", t.Box, t.Field, t.Value)
	case UpdatePointer:
		return fmt.Sprintf("update-pointer %s.%s -> %s", t.Box, t.Field, t.Target)
	default:
		return fmt.Sprintf("%s %s", t.Kind, t.Box)
	}
}

// pointerFields maps operation data fields that reference another box
// to the engine field that holds the reference.
var pointerFields = map[string]string{
	project.FieldTrackID: "track",
	project.FieldEffect:  project.PathEffects,
}

// Generate maps ops, in the order given, to tasks. Malformed operations
// are skipped and reported as *oplog.ValidationError values joined in
// the returned error; tasks for the rest are still returned.
func Generate(ops []oplog.Operation) ([]Task, error) {
	var tasks []Task
	var errs []error
	for i := range ops {
		generated, err := generate(&ops[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, generated...)
	}
	return tasks, errors.Join(errs...)
}

func generate(op *oplog.Operation) ([]Task, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	fields, err := op.Fields()
	if err != nil {
		return nil, err
	}
	box := op.Target.BoxUUID

	switch op.Type {
	case oplog.BoxAdd:
		payload := make(map[string]json.RawMessage, len(fields))
		var pointers []Task
		for _, name := range sortedKeys(fields) {
			if engineField, ok := pointerFields[name]; ok {
				task, err := pointerTask(op, engineField, fields[name])
				if err != nil {
					return nil, err
				}
				pointers = append(pointers, task)
				continue
			}
			payload[name] = fields[name]
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &oplog.ValidationError{OperationID: op.ID, Reason: "encoding payload", Err: err}
		}
		create := Task{Kind: New, Box: box, BoxKind: op.Target.BoxKind, Payload: encoded, OperationID: op.ID}
		return append([]Task{create}, pointers...), nil

	case oplog.BoxModify:
		tasks := make([]Task, 0, len(fields))
		for _, name := range sortedKeys(fields) {
			if engineField, ok := pointerFields[name]; ok {
				task, err := pointerTask(op, engineField, fields[name])
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, task)
				continue
			}
			tasks = append(tasks, Task{
				Kind:        UpdatePrimitive,
				Box:         box,
				Field:       name,
				Value:       fields[name],
				OperationID: op.ID,
			})
		}
		return tasks, nil

	case oplog.ConnectionChange:
		tasks := make([]Task, 0, len(fields))
		for _, name := range sortedKeys(fields) {
			task, err := pointerTask(op, op.Target.FieldPath, fields[name])
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
		if len(tasks) == 0 {
			return nil, &oplog.ValidationError{OperationID: op.ID, Reason: "connection change without a target"}
		}
		return tasks, nil

	case oplog.BoxRemove:
		return []Task{{Kind: Delete, Box: box, OperationID: op.ID}}, nil
	}
	return nil, &oplog.ValidationError{OperationID: op.ID, Reason: fmt.Sprintf("unknown operation type %q", op.Type)}
}

func pointerTask(op *oplog.Operation, field string, raw json.RawMessage) (Task, error) {
	var target string
	if err := json.Unmarshal(raw, &target); err != nil || target == "" {
		return Task{}, &oplog.ValidationError{
			OperationID: op.ID,
			Reason:      fmt.Sprintf("pointer field %s is not a box id: %s", field, raw),
			Err:         err,
		}
	}
	return Task{
		Kind:        UpdatePointer,
		Box:         op.Target.BoxUUID,
		Field:       field,
		Target:      target,
		OperationID: op.ID,
	}, nil
}

func sortedKeys(fields map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
