// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	saved := [...]string{GitCommit, GitDirty, BuildTime, Version}
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = saved[0], saved[1], saved[2], saved[3]
	})

	GitCommit, GitDirty, BuildTime, Version = "abc1234", "false", "2026-02-10T12:00:00Z", "1.2.0"
	if got, want := Info(), "1.2.0 (abc1234, 2026-02-10T12:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got, want := Info(), "1.2.0 (abc1234-dirty, 2026-02-10T12:00:00Z)"; got != want {
		t.Errorf("dirty Info() = %q, want %q", got, want)
	}

	var out bytes.Buffer
	Fprint(&out, "dawsync-peer")
	if !strings.HasPrefix(out.String(), "dawsync-peer 1.2.0 ") {
		t.Errorf("Fprint wrote %q", out.String())
	}
	if !strings.Contains(Full(), "Platform: ") {
		t.Errorf("Full() = %q lacks the platform", Full())
	}
}
