// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of a dawsync binary.
//
// The variables are injected with -ldflags -X at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/dawsync/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Development builds and tests see the defaults ("unknown",
// "0.1.0-dev").
package version
