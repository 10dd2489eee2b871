// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package updatetask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Engine is the consuming audio engine's box graph API.
type Engine interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	CreateBox(ctx context.Context, box, kind string, payload json.RawMessage) error
	UpdatePrimitive(ctx context.Context, box, field string, value json.RawMessage) error
	UpdatePointer(ctx context.Context, box, field, target string) error
	DeleteBox(ctx context.Context, box string) error
}

// TaskError reports the task that failed and its position in the
// batch.
type TaskError struct {
	Index int
	Task  Task
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s): %v", e.Index, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Apply runs tasks inside one transaction. It stops at the first task
// that fails (or when ctx is cancelled) and still commits, so the
// engine never holds an open transaction. It returns the number of
// tasks that succeeded.
func Apply(ctx context.Context, engine Engine, tasks []Task) (int, error) {
	if err := engine.BeginTransaction(ctx); err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	applied := 0
	var taskErr error
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			taskErr = &TaskError{Index: i, Task: task, Err: err}
			break
		}
		if err := run(ctx, engine, task); err != nil {
			taskErr = &TaskError{Index: i, Task: task, Err: err}
			break
		}
		applied++
	}

	// The commit must happen even if ctx is already cancelled.
	var commitErr error
	if err := engine.CommitTransaction(context.WithoutCancel(ctx)); err != nil {
		commitErr = fmt.Errorf("committing transaction: %w", err)
	}
	return applied, errors.Join(taskErr, commitErr)
}

func run(ctx context.Context, engine Engine, task Task) error {
	switch task.Kind {
	case New:
		return engine.CreateBox(ctx, task.Box, task.BoxKind, task.Payload)
	case UpdatePrimitive:
		return engine.UpdatePrimitive(ctx, task.Box, task.Field, task.Value)
	case UpdatePointer:
		return engine.UpdatePointer(ctx, task.Box, task.Field, task.Target)
	case Delete:
		return engine.DeleteBox(ctx, task.Box)
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}
