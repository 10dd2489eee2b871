// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assets

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrNotFound is returned by Store.Get for an asset that is not stored.
var ErrNotFound = errors.New("asset not found")

// UnavailableError reports an asset that could not be produced from
// any store or source.
type UnavailableError struct {
	ID  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("asset %s unavailable: %v", e.ID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Store holds asset bytes by id.
type Store interface {
	Has(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, data []byte) error
}

// ValidateID rejects ids that cannot name a file in a flat directory.
func ValidateID(id string) error {
	switch {
	case id == "":
		return errors.New("empty asset id")
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0):
		return fmt.Errorf("asset id %q contains a path separator", id)
	case id == "." || id == ".." || strings.HasPrefix(id, "."):
		return fmt.Errorf("asset id %q starts with a dot", id)
	}
	return nil
}

var fileMagic = [4]byte{'D', 'A', 'W', 'A'}

// magic + compression + uncompressed size + digest
const fileHeaderSize = 4 + 1 + 8 + 32

// FileStore keeps assets as files under a root directory.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at root, creating it if
// needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("assets: file store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("assets: creating %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

func (s *FileStore) Has(_ context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("assets: stat %s: %w", id, err)
}

func (s *FileStore) Get(_ context.Context, id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("assets: reading %s: %w", id, err)
	}
	data, err := decodeFile(raw)
	if err != nil {
		return nil, fmt.Errorf("assets: %s is corrupt: %w", id, err)
	}
	return data, nil
}

// Put writes the asset through a temporary file and a rename, so a
// reader never sees a partial file.
func (s *FileStore) Put(_ context.Context, id string, data []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	temporary, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return fmt.Errorf("assets: creating temporary file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(encodeFile(data)); err != nil {
		temporary.Close()
		return fmt.Errorf("assets: writing %s: %w", id, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("assets: writing %s: %w", id, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("assets: storing %s: %w", id, err)
	}
	return nil
}

func encodeFile(data []byte) []byte {
	body, tag := compress(data)
	digest := Sum(data)

	out := make([]byte, fileHeaderSize, fileHeaderSize+len(body))
	copy(out, fileMagic[:])
	out[4] = byte(tag)
	binary.LittleEndian.PutUint64(out[5:13], uint64(len(data)))
	copy(out[13:fileHeaderSize], digest[:])
	return append(out, body...)
}

func decodeFile(raw []byte) ([]byte, error) {
	if len(raw) < fileHeaderSize {
		return nil, fmt.Errorf("%d bytes is shorter than the header", len(raw))
	}
	if !bytes.Equal(raw[:4], fileMagic[:]) {
		return nil, fmt.Errorf("bad magic %q", raw[:4])
	}
	tag := Compression(raw[4])
	size := binary.LittleEndian.Uint64(raw[5:13])
	var digest Digest
	copy(digest[:], raw[13:fileHeaderSize])

	data, err := decompress(raw[fileHeaderSize:], tag, int(size))
	if err != nil {
		return nil, err
	}
	if Sum(data) != digest {
		return nil, fmt.Errorf("digest mismatch: header %s, content %s", digest, Sum(data))
	}
	return data, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string][]byte
}

// NewMemoryStore returns a store holding the given assets.
func NewMemoryStore(initial map[string][]byte) *MemoryStore {
	store := &MemoryStore{assets: make(map[string][]byte, len(initial))}
	for id, data := range initial {
		store.assets[id] = slices.Clone(data)
	}
	return store
}

func (s *MemoryStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assets[id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Put(_ context.Context, id string, data []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[id] = slices.Clone(data)
	return nil
}
