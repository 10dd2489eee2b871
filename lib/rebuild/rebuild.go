// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/dawsync/lib/assets"
	"github.com/bureau-foundation/dawsync/lib/clock"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	"github.com/bureau-foundation/dawsync/lib/snapshot"
	"github.com/bureau-foundation/dawsync/lib/updatetask"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultDownloadTimeout = 30 * time.Second
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultConcurrency     = 4
)

// Config configures a Rebuilder.
type Config struct {
	// ProjectID names the rebuilt project.
	ProjectID string

	// Assets is checked for every referenced audio file. Nil skips
	// asset reconciliation entirely.
	Assets assets.Store

	// Source supplies audio files missing from Assets. Nil means
	// missing files are only reported.
	Source assets.Source

	DownloadTimeout time.Duration
	RetryDelay      time.Duration
	Concurrency     int

	// Engine, if set, receives the update tasks of the replayed
	// operations that changed the project.
	Engine updatetask.Engine

	Clock  clock.Clock
	Logger *slog.Logger
}

// Result reports one rebuild.
type Result struct {
	// Success is true when no operation failed, the snapshot encoded,
	// and the rebuild was not cancelled. Warnings do not affect it.
	Success bool

	// Snapshot is the encoded snapshot, nil if encoding failed.
	Snapshot []byte
	// Payload is the decoded form of Snapshot.
	Payload snapshot.Payload

	AudioFilesNeeded     []string
	AudioFilesDownloaded []string
	OperationsApplied    int

	Errors   []error
	Warnings []error

	Metadata Metadata
}

// Metadata describes the rebuild itself.
type Metadata struct {
	RebuildTime     time.Duration
	TotalOperations int
	BoxCount        int
	TrackCount      int
}

// Rebuilder replays operation logs. It holds no state between
// rebuilds and is safe for concurrent use.
type Rebuilder struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Rebuilder.
func New(cfg Config) *Rebuilder {
	if cfg.ProjectID == "" {
		cfg.ProjectID = "project"
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rebuilder{cfg: cfg, clock: c, logger: logger.With("project", cfg.ProjectID)}
}

// Rebuild replays ops onto an empty project. ops may contain
// duplicates and may be in any order.
func (r *Rebuilder) Rebuild(ctx context.Context, ops []oplog.Operation) Result {
	started := r.clock.Now()
	var result Result

	log := oplog.NewLog()
	for _, op := range ops {
		if _, err := log.Append(op); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	ordered := log.OrderedOperations()
	for _, pending := range log.Unresolved() {
		result.Warnings = append(result.Warnings, &oplog.DependencyError{
			OperationID: pending.Operation.ID,
			Missing:     pending.Missing,
		})
		ordered = append(ordered, pending.Operation)
	}

	p := project.New(r.cfg.ProjectID)
	var replayed []oplog.Operation
	for _, op := range ordered {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("replay cancelled after %d operations: %w", result.OperationsApplied, err))
			break
		}
		changed, err := p.Apply(op)
		if err != nil {
			r.logger.Warn("operation failed to apply", "operation", op.ID, "error", err)
			result.Errors = append(result.Errors, err)
			continue
		}
		result.OperationsApplied++
		// A write that lost its register race never reaches the engine.
		if changed {
			replayed = append(replayed, op)
		}
	}

	payload := snapshot.FromProject(p, log.Len())
	result.AudioFilesNeeded = payload.AudioFiles

	if ctx.Err() == nil {
		downloaded, warnings := r.reconcile(ctx, payload.AudioFiles)
		result.AudioFilesDownloaded = downloaded
		result.Warnings = append(result.Warnings, warnings...)
	}

	if r.cfg.Engine != nil && ctx.Err() == nil {
		if err := r.applyToEngine(ctx, replayed); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	encoded, err := snapshot.Encode(payload)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.Snapshot = encoded
	}
	result.Payload = payload

	if err := ctx.Err(); err != nil && !containsCancellation(result.Errors) {
		result.Errors = append(result.Errors, fmt.Errorf("rebuild cancelled: %w", err))
	}

	result.Metadata = Metadata{
		RebuildTime:     r.clock.Now().Sub(started),
		TotalOperations: log.Len(),
		BoxCount:        len(payload.Boxes),
		TrackCount:      len(payload.Tracks),
	}
	result.Success = len(result.Errors) == 0 && result.Snapshot != nil

	r.logger.Info("rebuild finished",
		"success", result.Success,
		"operations", result.Metadata.TotalOperations,
		"applied", result.OperationsApplied,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"audio_needed", len(result.AudioFilesNeeded),
		"audio_downloaded", len(result.AudioFilesDownloaded),
	)
	return result
}

func containsCancellation(errs []error) bool {
	for _, err := range errs {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true
		}
	}
	return false
}

func (r *Rebuilder) applyToEngine(ctx context.Context, ops []oplog.Operation) error {
	tasks, err := updatetask.Generate(ops)
	if err != nil {
		r.logger.Warn("some operations produced no update tasks", "error", err)
	}
	applied, err := updatetask.Apply(ctx, r.cfg.Engine, tasks)
	if err != nil {
		return fmt.Errorf("applying update tasks (%d of %d applied): %w", applied, len(tasks), err)
	}
	return nil
}

// reconcile makes sure every file is in the asset store. It returns
// the files it downloaded, sorted, and a warning per file it could not
// make available.
func (r *Rebuilder) reconcile(ctx context.Context, files []string) ([]string, []error) {
	if r.cfg.Assets == nil || len(files) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		downloaded = make(map[string]bool)
		warnings   = make(map[string]error)
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.Concurrency)
	for _, file := range files {
		group.Go(func() error {
			fetched, err := r.ensure(groupCtx, file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings[file] = &assets.UnavailableError{ID: file, Err: err}
			} else if fetched {
				downloaded[file] = true
			}
			return nil
		})
	}
	group.Wait()

	// files is sorted, so iterating it keeps both lists deterministic.
	var names []string
	var errs []error
	for _, file := range files {
		if downloaded[file] {
			names = append(names, file)
		}
		if err, ok := warnings[file]; ok {
			errs = append(errs, err)
		}
	}
	return names, errs
}

// ensure reports whether it had to download the file.
func (r *Rebuilder) ensure(ctx context.Context, file string) (bool, error) {
	present, err := r.cfg.Assets.Has(ctx, file)
	if err != nil {
		return false, fmt.Errorf("checking local store: %w", err)
	}
	if present {
		return false, nil
	}
	if r.cfg.Source == nil {
		return false, assets.ErrNotFound
	}

	attempt := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
		defer cancel()
		data, err := r.cfg.Source.Fetch(attemptCtx, file)
		if errors.Is(err, assets.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.RetryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Debug("retrying audio download", "file", file, "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return false, fmt.Errorf("downloading after %d attempts: %w", attempt, err)
	}
	if err := r.cfg.Assets.Put(ctx, file, data); err != nil {
		return false, fmt.Errorf("storing download: %w", err)
	}
	r.logger.Debug("audio downloaded", "file", file, "bytes", len(data))
	return true, nil
}
