// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/dawsync/lib/codec"
	"github.com/bureau-foundation/dawsync/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	record  BLOB NOT NULL,
	applied INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS operations_user ON operations (user_id);
`

// SQLiteStore keeps the operation log in a SQLite database. Each row
// holds the CBOR encoding of one Operation.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// OpenSQLite opens (creating if needed) the log database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	poolSize := 0
	if path == ":memory:" {
		poolSize = 1
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{pool: pool}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	encoded, err := codec.Marshal(record.Operation)
	if err != nil {
		return fmt.Errorf("encoding operation %s: %w", record.Operation.ID, err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO operations (id, user_id, record, applied) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET applied = MAX(applied, excluded.applied)`,
		&sqlitex.ExecOptions{
			Args: []any{record.Operation.ID, record.Operation.UserID, encoded, record.Applied},
		})
	if err != nil {
		return fmt.Errorf("saving operation %s: %w", record.Operation.ID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkApplied(ctx context.Context, ids ...string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("marking operations applied: %w", err)
	}
	defer endFn(&err)

	for _, id := range ids {
		if err = sqlitex.Execute(conn, `UPDATE operations SET applied = 1 WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
			return fmt.Errorf("marking operation %s applied: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, `SELECT record, applied FROM operations ORDER BY rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				encoded := make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, encoded)
				var op Operation
				if err := codec.Unmarshal(encoded, &op); err != nil {
					return fmt.Errorf("decoding stored operation: %w", err)
				}
				records = append(records, Record{Operation: op, Applied: stmt.ColumnInt64(1) != 0})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("loading operations: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
