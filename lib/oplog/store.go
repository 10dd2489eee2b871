// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Record is one stored operation and whether it has been applied.
type Record struct {
	Operation Operation `json:"operation"`
	Applied   bool      `json:"applied"`
}

// Store persists operations across restarts. Save is an upsert keyed
// by operation id: the applied flag only ever moves from false to
// true. Load returns records in the order they were first saved.
type Store interface {
	Save(ctx context.Context, record Record) error
	MarkApplied(ctx context.Context, ids ...string) error
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// Load reads every record from store into a new Log. Records that no
// longer validate are skipped and counted in the returned int.
func Load(ctx context.Context, store Store) (*Log, int, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loading operation log: %w", err)
	}
	log := NewLog()
	skipped := 0
	for _, record := range records {
		if _, err := log.Append(record.Operation); err != nil {
			skipped++
			continue
		}
		if record.Applied {
			log.MarkApplied(record.Operation.ID)
		}
	}
	return log, skipped, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	order   []string
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.Operation.ID]
	if !ok {
		s.order = append(s.order, record.Operation.ID)
	}
	record.Operation = record.Operation.Clone()
	record.Applied = record.Applied || existing.Applied
	s.records[record.Operation.ID] = record
	return nil
}

func (s *MemoryStore) MarkApplied(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if record, ok := s.records[id]; ok {
			record.Applied = true
			s.records[id] = record
		}
	}
	return nil
}

func (s *MemoryStore) Load(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		record := s.records[id]
		record.Operation = record.Operation.Clone()
		out = append(out, record)
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IDs returns the stored operation ids, sorted.
func (s *MemoryStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Clone(s.order)
	slices.Sort(ids)
	return ids
}

func (s *MemoryStore) Close() error { return nil }
