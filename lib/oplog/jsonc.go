// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
)

// ReadJSONC reads an exported operation list: a JSON array of
// operations that may carry // and /* */ comments and trailing commas.
// Every operation is validated; the first invalid one fails the read.
func ReadJSONC(r io.Reader) ([]Operation, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading operation export: %w", err)
	}
	var ops []Operation
	if err := json.Unmarshal(jsonc.ToJSON(raw), &ops); err != nil {
		return nil, fmt.Errorf("parsing operation export: %w", err)
	}
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return ops, nil
}

// WriteJSON writes ops as an indented JSON array that ReadJSONC can
// read back.
func WriteJSON(w io.Writer, ops []Operation) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if ops == nil {
		ops = []Operation{}
	}
	if err := encoder.Encode(ops); err != nil {
		return fmt.Errorf("writing operation export: %w", err)
	}
	return nil
}
