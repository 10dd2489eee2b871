// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package updatetask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoTransaction is returned by RecordingEngine for a box call made
// outside a transaction.
var ErrNoTransaction = errors.New("no open transaction")

// Box is a box as RecordingEngine holds it.
type Box struct {
	ID       string                     `json:"id"`
	Kind     string                     `json:"kind,omitempty"`
	Fields   map[string]json.RawMessage `json:"fields"`
	Pointers map[string][]string        `json:"pointers,omitempty"`
	Deleted  bool                       `json:"deleted,omitempty"`
}

// RecordingEngine is an in-memory Engine. A box referenced before it
// is created is materialized without a kind.
type RecordingEngine struct {
	// FailOn, if set, is consulted before every box call; a non-nil
	// return fails that call.
	FailOn func(task Task) error

	mu           sync.Mutex
	open         bool
	boxes        map[string]*Box
	transactions int
	calls        []Task
}

// NewRecordingEngine returns an empty engine.
func NewRecordingEngine() *RecordingEngine {
	return &RecordingEngine{boxes: make(map[string]*Box)}
}

func (e *RecordingEngine) BeginTransaction(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return errors.New("transaction already open")
	}
	e.open = true
	return nil
}

func (e *RecordingEngine) CommitTransaction(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNoTransaction
	}
	e.open = false
	e.transactions++
	return nil
}

func (e *RecordingEngine) CreateBox(_ context.Context, box, kind string, payload json.RawMessage) error {
	return e.record(Task{Kind: New, Box: box, BoxKind: kind, Payload: payload}, func(b *Box) error {
		b.Kind = kind
		if len(payload) == 0 {
			return nil
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return fmt.Errorf("payload for %s: %w", box, err)
		}
		for name, value := range fields {
			b.Fields[name] = value
		}
		return nil
	})
}

func (e *RecordingEngine) UpdatePrimitive(_ context.Context, box, field string, value json.RawMessage) error {
	return e.record(Task{Kind: UpdatePrimitive, Box: box, Field: field, Value: value}, func(b *Box) error {
		b.Fields[field] = value
		return nil
	})
}

func (e *RecordingEngine) UpdatePointer(_ context.Context, box, field, target string) error {
	return e.record(Task{Kind: UpdatePointer, Box: box, Field: field, Target: target}, func(b *Box) error {
		if !slices.Contains(b.Pointers[field], target) {
			b.Pointers[field] = append(b.Pointers[field], target)
			slices.Sort(b.Pointers[field])
		}
		return nil
	})
}

func (e *RecordingEngine) DeleteBox(_ context.Context, box string) error {
	return e.record(Task{Kind: Delete, Box: box}, func(b *Box) error {
		b.Deleted = true
		return nil
	})
}

func (e *RecordingEngine) record(task Task, mutate func(*Box) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNoTransaction
	}
	if e.FailOn != nil {
		if err := e.FailOn(task); err != nil {
			return err
		}
	}
	b, ok := e.boxes[task.Box]
	if !ok {
		b = &Box{ID: task.Box, Fields: make(map[string]json.RawMessage), Pointers: make(map[string][]string)}
		e.boxes[task.Box] = b
	}
	if err := mutate(b); err != nil {
		return err
	}
	e.calls = append(e.calls, task)
	return nil
}

// Box returns a copy of a box.
func (e *RecordingEngine) Box(id string) (Box, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.boxes[id]
	if !ok {
		return Box{}, false
	}
	out := Box{ID: b.ID, Kind: b.Kind, Deleted: b.Deleted,
		Fields:   make(map[string]json.RawMessage, len(b.Fields)),
		Pointers: make(map[string][]string, len(b.Pointers)),
	}
	for name, value := range b.Fields {
		out.Fields[name] = slices.Clone(value)
	}
	for name, targets := range b.Pointers {
		out.Pointers[name] = slices.Clone(targets)
	}
	return out, true
}

// BoxIDs returns every box id, sorted.
func (e *RecordingEngine) BoxIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.boxes))
	for id := range e.boxes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Calls returns every successful box call in order.
func (e *RecordingEngine) Calls() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Transactions returns the number of committed transactions.
func (e *RecordingEngine) Transactions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transactions
}

// InTransaction reports whether a transaction is open.
func (e *RecordingEngine) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}
