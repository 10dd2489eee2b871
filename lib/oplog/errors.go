// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed operation or target. The
// operation is rejected.
type ValidationError struct {
	OperationID string
	Reason      string
	Err         error
}

func (e *ValidationError) Error() string {
	id := e.OperationID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("invalid operation %s: %s", id, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DependencyError reports an operation that cannot be ordered because
// some of its dependencies have not arrived. It is informational: the
// operation stays buffered.
type DependencyError struct {
	OperationID string
	Missing     []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("operation %s waits on missing dependencies [%s]",
		e.OperationID, strings.Join(e.Missing, ", "))
}
