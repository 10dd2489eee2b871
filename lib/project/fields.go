// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/dawsync/lib/crdt"
	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Field names carried in operation data.
const (
	FieldTrackID   = "trackId"
	FieldStartTime = "startTime"
	FieldEndTime   = "endTime"
	FieldFileName  = "fileName"
	FieldVolume    = "volume"
	FieldPan       = "pan"
	FieldColor     = "color"
	FieldDeleted   = "deleted"

	FieldName   = "name"
	FieldMute   = "mute"
	FieldSolo   = "solo"
	FieldEffect = "effect"

	FieldBPM           = "bpm"
	FieldTimeSignature = "timeSignature"
	FieldMasterVolume  = "masterVolume"
)

// Field paths that group several fields or name a connection.
const (
	PathPosition = "position"
	PathEffects  = "effects"
)

// Defaults reported for registers nobody has written yet.
const (
	DefaultBPM           = 120.0
	DefaultTimeSignature = "4/4"
	DefaultVolume        = 1.0
	MaxVolume            = 2.0
)

var (
	// ErrNotFound is returned by local mutations that name an unknown
	// track or region.
	ErrNotFound = errors.New("not found")
	// ErrDeleted is returned by local mutations of a tombstoned region.
	ErrDeleted = errors.New("region deleted")
	// ErrInvalidValue is returned when a field value is out of range.
	ErrInvalidValue = errors.New("invalid value")
)

// commit applies a decoded write and reports whether it won.
type commit func(clock vclock.VectorClock, writer string) bool

// binder decodes one raw field value and returns the pending write.
type binder func(raw json.RawMessage) (commit, error)

func bind[T any](register *crdt.LWWRegister[T], check func(T) error) binder {
	return func(raw json.RawMessage) (commit, error) {
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(value); err != nil {
				return nil, err
			}
		}
		return func(clock vclock.VectorClock, writer string) bool {
			return register.Set(value, clock, writer)
		}, nil
	}
}

func nonNegative(v float64) error {
	if v < 0 {
		return fmt.Errorf("%w: %v is negative", ErrInvalidValue, v)
	}
	return nil
}

func volumeRange(v float64) error {
	if v < 0 || v > MaxVolume {
		return fmt.Errorf("%w: volume %v outside [0, %v]", ErrInvalidValue, v, MaxVolume)
	}
	return nil
}

func panRange(v float64) error {
	if v < -1 || v > 1 {
		return fmt.Errorf("%w: pan %v outside [-1, 1]", ErrInvalidValue, v)
	}
	return nil
}

func positive(v float64) error {
	if v <= 0 {
		return fmt.Errorf("%w: %v is not positive", ErrInvalidValue, v)
	}
	return nil
}

func nonEmpty(v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty string", ErrInvalidValue)
	}
	return nil
}

// bindAll decodes every field in fields against table. Nothing is
// written unless every field decodes.
func bindAll(table map[string]binder, fields map[string]json.RawMessage) ([]commit, error) {
	commits := make([]commit, 0, len(fields))
	for name, raw := range fields {
		binder, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		write, err := binder(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		commits = append(commits, write)
	}
	return commits, nil
}

func runAll(commits []commit, clock vclock.VectorClock, writer string) bool {
	changed := false
	for _, write := range commits {
		if write(clock, writer) {
			changed = true
		}
	}
	return changed
}
