// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/dawsync/lib/vclock"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "oplog.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			first := testOp("a1", "alice", vclock.VectorClock{"alice": 1})
			second := testOp("a2", "alice", vclock.VectorClock{"alice": 2}, "a1")
			orphan := testOp("b2", "bob", vclock.VectorClock{"bob": 2}, "b1")

			for _, record := range []Record{{Operation: first, Applied: true}, {Operation: second}, {Operation: orphan}} {
				if err := store.Save(ctx, record); err != nil {
					t.Fatalf("Save(%s): %v", record.Operation.ID, err)
				}
			}
			if err := store.MarkApplied(ctx, "a2"); err != nil {
				t.Fatalf("MarkApplied: %v", err)
			}
			// Saving again unapplied must not clear the flag.
			if err := store.Save(ctx, Record{Operation: first}); err != nil {
				t.Fatalf("re-Save: %v", err)
			}

			log, skipped, err := Load(ctx, store)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if skipped != 0 {
				t.Fatalf("Load skipped %d records", skipped)
			}
			if log.Len() != 3 {
				t.Fatalf("loaded %d operations, want 3", log.Len())
			}
			if !log.IsApplied("a1") || !log.IsApplied("a2") || log.IsApplied("b2") {
				t.Fatal("applied flags did not survive the round trip")
			}
			loaded, _ := log.Get("a2")
			if !loaded.Timestamp.Equal(second.Timestamp) || !slices.Equal(loaded.Dependencies, []string{"a1"}) {
				t.Fatalf("loaded a2 = %+v", loaded)
			}
			if string(loaded.Data) != string(second.Data) {
				t.Fatalf("loaded data = %s, want %s", loaded.Data, second.Data)
			}
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "oplog.db")

	store, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.Save(ctx, Record{Operation: testOp("a1", "alice", vclock.VectorClock{"alice": 1}), Applied: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	records, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 1 || records[0].Operation.ID != "a1" || !records[0].Applied {
		t.Fatalf("records after reopen = %+v", records)
	}
}

func TestReadJSONC(t *testing.T) {
	input := `[
		// alice creates the region
		{
			"id": "a1",
			"type": "box_add",
			"target": {"boxUuid": "r1", "boxKind": "region"},
			"data": {"trackId": "t1", "fileName": "drums.wav"},
			"userId": "alice",
			"timestamp": {"alice": 1}, /* first event */
		},
	]`
	ops, err := ReadJSONC(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONC: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != "a1" || ops[0].Type != BoxAdd {
		t.Fatalf("ops = %+v", ops)
	}

	var buffer bytes.Buffer
	if err := WriteJSON(&buffer, ops); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	again, err := ReadJSONC(&buffer)
	if err != nil {
		t.Fatalf("ReadJSONC of export: %v", err)
	}
	if len(again) != 1 || again[0].ID != "a1" {
		t.Fatalf("re-read = %+v", again)
	}
}

func TestReadJSONCRejectsInvalidOperation(t *testing.T) {
	_, err := ReadJSONC(strings.NewReader(`[{"id": "a1", "type": "box_add"}]`))
	var validationError *ValidationError
	if !errors.As(err, &validationError) {
		t.Fatalf("ReadJSONC = %v, want *ValidationError", err)
	}
}
