// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Source fetches an asset that is not stored locally.
type Source interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// HTTPSource fetches assets with GET BaseURL/<id>.
type HTTPSource struct {
	BaseURL string

	// Client defaults to http.DefaultClient.
	Client *http.Client

	// MaxBytes bounds a single download. Zero means 1 GiB.
	MaxBytes int64
}

func (s *HTTPSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	target := strings.TrimSuffix(s.BaseURL, "/") + "/" + url.PathEscape(id)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", id, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetching %s: %w", id, ErrNotFound)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %s", id, response.Status)
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", id, limit)
	}
	return data, nil
}

// StoreSource serves fetches from another Store.
type StoreSource struct {
	Store Store
}

func (s StoreSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	return s.Store.Get(ctx, id)
}
